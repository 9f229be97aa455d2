package storage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"lessonkb/config"
	"lessonkb/core"
)

// KeyframeStore persists accepted keyframe records and serves semantic
// search over them.
type KeyframeStore interface {
	SaveKeyframes(ctx context.Context, keyframes []core.Keyframe) (int, error)
	Search(ctx context.Context, lessonName, query string, topK int) ([]core.KeyframeHit, error)
}

// Embedder is the text-embedding dependency of the vector backends.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Init picks the backend from configuration. Anything that fails to come up
// degrades to the in-memory store so lesson processing still works.
func Init(cfg *config.Config, embedder Embedder, log *zap.Logger) KeyframeStore {
	switch strings.ToLower(strings.TrimSpace(cfg.Store)) {
	case "pgvector":
		s, err := NewPgVectorKeyframeStore(context.Background(), cfg, embedder)
		if err != nil {
			log.Warn("pgvector store unavailable, falling back to memory", zap.Error(err))
			return NewMemoryKeyframeStore(embedder)
		}
		log.Info("keyframe store initialized", zap.String("backend", "pgvector"))
		return s
	case "milvus":
		s, err := NewMilvusKeyframeStore(context.Background(), cfg, embedder)
		if err != nil {
			log.Warn("milvus store unavailable, falling back to memory", zap.Error(err))
			return NewMemoryKeyframeStore(embedder)
		}
		log.Info("keyframe store initialized", zap.String("backend", "milvus"))
		return s
	default:
		log.Info("keyframe store initialized", zap.String("backend", "memory"))
		return NewMemoryKeyframeStore(embedder)
	}
}

// embeddingText is what gets embedded for a stored keyframe: the narration
// window plus the frame description, the same pairing the selector scored.
func embeddingText(k core.Keyframe) string {
	return strings.ToLower(strings.TrimSpace(k.ContextText + " " + k.Description))
}

// ---------------- Memory implementation (fallback) ----------------

type MemoryKeyframeStore struct {
	mu       sync.RWMutex
	embedder Embedder
	records  map[string][]memoryRecord // lesson name -> records
}

type memoryRecord struct {
	keyframe core.Keyframe
	vector   []float32
}

func NewMemoryKeyframeStore(embedder Embedder) *MemoryKeyframeStore {
	return &MemoryKeyframeStore{
		embedder: embedder,
		records:  make(map[string][]memoryRecord),
	}
}

func (s *MemoryKeyframeStore) SaveKeyframes(ctx context.Context, keyframes []core.Keyframe) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := 0
	for _, k := range keyframes {
		vec, err := s.embedder.Embed(ctx, embeddingText(k))
		if err != nil {
			continue
		}
		s.records[k.LessonName] = append(s.records[k.LessonName], memoryRecord{keyframe: k, vector: vec})
		saved++
	}
	return saved, nil
}

func (s *MemoryKeyframeStore) Search(ctx context.Context, lessonName, query string, topK int) ([]core.KeyframeHit, error) {
	qv, err := s.embedder.Embed(ctx, strings.ToLower(query))
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.records[lessonName]
	hits := make([]core.KeyframeHit, 0, len(records))
	for _, r := range records {
		hits = append(hits, hitFromKeyframe(r.keyframe, cosine32(qv, r.vector)))
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if topK <= 0 {
		topK = 5
	}
	if topK < len(hits) {
		hits = hits[:topK]
	}
	return hits, nil
}

func hitFromKeyframe(k core.Keyframe, score float64) core.KeyframeHit {
	return core.KeyframeHit{
		Score:       score,
		LessonName:  k.LessonName,
		StepID:      k.StepID,
		Timestamp:   k.Timestamp,
		FrameKey:    k.FrameKey,
		Description: k.Description,
		ContextText: k.ContextText,
	}
}

func cosine32(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// ---------------- PgVector implementation ----------------

type PgVectorKeyframeStore struct {
	conn     *pgx.Conn
	embedder Embedder
}

func NewPgVectorKeyframeStore(ctx context.Context, cfg *config.Config, embedder Embedder) (*PgVectorKeyframeStore, error) {
	if cfg.PostgresURL == "" {
		return nil, fmt.Errorf("DATABASE_URL not configured")
	}
	conn, err := pgx.Connect(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PgVectorKeyframeStore{conn: conn, embedder: embedder}
	if err := s.ensureTable(ctx); err != nil {
		conn.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *PgVectorKeyframeStore) ensureTable(ctx context.Context) error {
	if _, err := s.conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector;"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	tableQuery := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS lesson_keyframes (
			id SERIAL PRIMARY KEY,
			lesson_name VARCHAR(500) NOT NULL,
			step_id BIGINT NOT NULL,
			ts FLOAT NOT NULL,
			window_start FLOAT NOT NULL,
			window_end FLOAT NOT NULL,
			frame_key VARCHAR(1024) NOT NULL,
			description TEXT,
			context_text TEXT,
			embedding vector(%d),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(lesson_name, step_id, frame_key)
		);
	`, embeddingDim)
	if _, err := s.conn.Exec(ctx, tableQuery); err != nil {
		return fmt.Errorf("create lesson_keyframes table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_lesson_keyframes_lesson ON lesson_keyframes(lesson_name);",
		"CREATE INDEX IF NOT EXISTS idx_lesson_keyframes_step ON lesson_keyframes(lesson_name, step_id);",
	}
	for _, q := range indexes {
		if _, err := s.conn.Exec(ctx, q); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

func (s *PgVectorKeyframeStore) SaveKeyframes(ctx context.Context, keyframes []core.Keyframe) (int, error) {
	saved := 0
	for _, k := range keyframes {
		embedding, err := s.embedder.Embed(ctx, embeddingText(k))
		if err != nil {
			continue
		}

		_, err = s.conn.Exec(ctx, `
			INSERT INTO lesson_keyframes
				(lesson_name, step_id, ts, window_start, window_end, frame_key, description, context_text, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (lesson_name, step_id, frame_key)
			DO UPDATE SET
				ts = EXCLUDED.ts,
				window_start = EXCLUDED.window_start,
				window_end = EXCLUDED.window_end,
				description = EXCLUDED.description,
				context_text = EXCLUDED.context_text,
				embedding = EXCLUDED.embedding
		`, k.LessonName, k.StepID, k.Timestamp, k.WindowStart, k.WindowEnd, k.FrameKey,
			k.Description, k.ContextText, pgvector.NewVector(embedding))
		if err != nil {
			continue
		}
		saved++
	}
	return saved, nil
}

func (s *PgVectorKeyframeStore) Search(ctx context.Context, lessonName, query string, topK int) ([]core.KeyframeHit, error) {
	if topK <= 0 {
		topK = 5
	}
	qv, err := s.embedder.Embed(ctx, strings.ToLower(query))
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := s.conn.Query(ctx, `
		SELECT lesson_name, step_id, ts, frame_key, description, context_text,
		       1 - (embedding <=> $1) AS score
		FROM lesson_keyframes
		WHERE lesson_name = $2 AND embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $3
	`, pgvector.NewVector(qv), lessonName, topK)
	if err != nil {
		return nil, fmt.Errorf("search keyframes: %w", err)
	}
	defer rows.Close()

	var hits []core.KeyframeHit
	for rows.Next() {
		var h core.KeyframeHit
		if err := rows.Scan(&h.LessonName, &h.StepID, &h.Timestamp, &h.FrameKey,
			&h.Description, &h.ContextText, &h.Score); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *PgVectorKeyframeStore) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}

// ---------------- Milvus implementation ----------------

type MilvusKeyframeStore struct {
	mc       client.Client
	coll     string
	embedder Embedder
}

func NewMilvusKeyframeStore(ctx context.Context, cfg *config.Config, embedder Embedder) (*MilvusKeyframeStore, error) {
	mc, err := client.NewClient(ctx, client.Config{
		Address:  cfg.MilvusAddr,
		Username: cfg.MilvusUsername,
		Password: cfg.MilvusPassword,
		APIKey:   cfg.MilvusAPIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("connect milvus: %w", err)
	}

	s := &MilvusKeyframeStore{mc: mc, coll: cfg.MilvusCollection, embedder: embedder}
	if err := s.ensureSchemaAndIndex(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MilvusKeyframeStore) ensureSchemaAndIndex(ctx context.Context) error {
	has, err := s.mc.HasCollection(ctx, s.coll)
	if err != nil {
		return err
	}
	if !has {
		if err := s.mc.CreateCollection(ctx, keyframeSchema(s.coll), int32(2)); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
	}

	idx, err := entity.NewIndexHNSW(entity.COSINE, 8, 200)
	if err != nil {
		return fmt.Errorf("new hnsw index: %w", err)
	}
	if err := s.mc.CreateIndex(ctx, s.coll, "vector", idx, false, client.WithIndexName("idx_vector")); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	if err := s.mc.LoadCollection(ctx, s.coll, false); err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	return nil
}

// keyframeSchema describes the milvus collection for keyframe records.
func keyframeSchema(coll string) *entity.Schema {
	schema := entity.NewSchema().WithName(coll)
	schema.WithField(entity.NewField().WithName("id").WithIsAutoID(true).WithIsPrimaryKey(true).WithDataType(entity.FieldTypeInt64))
	schema.WithField(entity.NewField().WithName("lesson_name").WithDataType(entity.FieldTypeVarChar).WithMaxLength(500))
	schema.WithField(entity.NewField().WithName("step_id").WithDataType(entity.FieldTypeInt64))
	schema.WithField(entity.NewField().WithName("ts").WithDataType(entity.FieldTypeDouble))
	schema.WithField(entity.NewField().WithName("frame_key").WithDataType(entity.FieldTypeVarChar).WithMaxLength(1024))
	schema.WithField(entity.NewField().WithName("description").WithDataType(entity.FieldTypeVarChar).WithMaxLength(4096))
	schema.WithField(entity.NewField().WithName("context_text").WithDataType(entity.FieldTypeVarChar).WithMaxLength(4096))
	schema.WithField(entity.NewField().WithName("vector").WithDataType(entity.FieldTypeFloatVector).WithDim(int64(embeddingDim)))
	return schema
}

func (s *MilvusKeyframeStore) SaveKeyframes(ctx context.Context, keyframes []core.Keyframe) (int, error) {
	if len(keyframes) == 0 {
		return 0, nil
	}

	lessons := make([]string, 0, len(keyframes))
	stepIDs := make([]int64, 0, len(keyframes))
	timestamps := make([]float64, 0, len(keyframes))
	frameKeys := make([]string, 0, len(keyframes))
	descriptions := make([]string, 0, len(keyframes))
	contexts := make([]string, 0, len(keyframes))
	vectors := make([][]float32, 0, len(keyframes))

	for _, k := range keyframes {
		vec, err := s.embedder.Embed(ctx, embeddingText(k))
		if err != nil {
			continue
		}
		lessons = append(lessons, k.LessonName)
		stepIDs = append(stepIDs, k.StepID)
		timestamps = append(timestamps, k.Timestamp)
		frameKeys = append(frameKeys, k.FrameKey)
		descriptions = append(descriptions, k.Description)
		contexts = append(contexts, k.ContextText)
		vectors = append(vectors, vec)
	}
	if len(vectors) == 0 {
		return 0, nil
	}

	_, err := s.mc.Insert(ctx, s.coll, "",
		entity.NewColumnVarChar("lesson_name", lessons),
		entity.NewColumnInt64("step_id", stepIDs),
		entity.NewColumnDouble("ts", timestamps),
		entity.NewColumnVarChar("frame_key", frameKeys),
		entity.NewColumnVarChar("description", descriptions),
		entity.NewColumnVarChar("context_text", contexts),
		entity.NewColumnFloatVector("vector", embeddingDim, vectors),
	)
	if err != nil {
		return 0, fmt.Errorf("insert keyframes: %w", err)
	}
	return len(vectors), nil
}

func (s *MilvusKeyframeStore) Search(ctx context.Context, lessonName, query string, topK int) ([]core.KeyframeHit, error) {
	if topK <= 0 {
		topK = 5
	}
	qv, err := s.embedder.Embed(ctx, strings.ToLower(query))
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	sp, _ := entity.NewIndexHNSWSearchParam(74)
	filter := fmt.Sprintf("lesson_name == %q", lessonName)
	res, err := s.mc.Search(ctx, s.coll, []string{}, filter,
		[]string{"lesson_name", "step_id", "ts", "frame_key", "description", "context_text"},
		[]entity.Vector{entity.FloatVector(qv)}, "vector", entity.COSINE, topK, sp)
	if err != nil {
		return nil, fmt.Errorf("search keyframes: %w", err)
	}

	var hits []core.KeyframeHit
	for _, r := range res {
		cols := map[string]entity.Column{}
		for _, c := range r.Fields {
			cols[c.Name()] = c
		}
		for i := 0; i < r.ResultCount; i++ {
			var h core.KeyframeHit
			h.Score = float64(r.Scores[i])
			if c, ok := cols["lesson_name"].(*entity.ColumnVarChar); ok && i < len(c.Data()) {
				h.LessonName = c.Data()[i]
			}
			if c, ok := cols["step_id"].(*entity.ColumnInt64); ok && i < len(c.Data()) {
				h.StepID = c.Data()[i]
			}
			if c, ok := cols["ts"].(*entity.ColumnDouble); ok && i < len(c.Data()) {
				h.Timestamp = c.Data()[i]
			}
			if c, ok := cols["frame_key"].(*entity.ColumnVarChar); ok && i < len(c.Data()) {
				h.FrameKey = c.Data()[i]
			}
			if c, ok := cols["description"].(*entity.ColumnVarChar); ok && i < len(c.Data()) {
				h.Description = c.Data()[i]
			}
			if c, ok := cols["context_text"].(*entity.ColumnVarChar); ok && i < len(c.Data()) {
				h.ContextText = c.Data()[i]
			}
			hits = append(hits, h)
		}
	}
	return hits, nil
}

package database

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names
const (
	CollectionActivityLogs     = "activity_logs"
	CollectionSessionSummaries = "session_summaries"
)

// Health is the cached connectivity state of the Hive Mind. The first failed
// connection attempt flips the state to unhealthy so an unreachable endpoint
// is not re-dialed on every capture tick.
type Health int

const (
	HealthUnknown Health = iota
	HealthHealthy
	HealthUnhealthy
)

func (h Health) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// HiveMind is the shared MongoDB connector that stores and queries DevScope
// activity logs and session summaries. The connection is lazy: nothing is
// dialed until the first publish or query, and all transport failures degrade
// to boolean/empty results rather than errors.
type HiveMind struct {
	uri                 string
	dbName              string
	activityCollection  string
	summariesCollection string
	defaultOrg          string

	mu     sync.Mutex
	client *mongo.Client
	health Health
}

// Options configures a HiveMind client. Zero-value fields fall back to the
// conventional names.
type Options struct {
	URI                 string
	Database            string
	ActivityCollection  string
	SummariesCollection string
	DefaultOrg          string
}

// New creates a Hive Mind client. No connection is attempted here.
func New(opts Options) *HiveMind {
	if opts.Database == "" {
		opts.Database = "devscope"
	}
	if opts.ActivityCollection == "" {
		opts.ActivityCollection = CollectionActivityLogs
	}
	if opts.SummariesCollection == "" {
		opts.SummariesCollection = CollectionSessionSummaries
	}
	return &HiveMind{
		uri:                 opts.URI,
		dbName:              opts.Database,
		activityCollection:  opts.ActivityCollection,
		summariesCollection: opts.SummariesCollection,
		defaultOrg:          opts.DefaultOrg,
	}
}

// Enabled reports whether Hive Mind connectivity is available. The first call
// after startup dials the server; later calls return the cached health.
func (h *HiveMind) Enabled(ctx context.Context) bool {
	if h == nil || h.uri == "" {
		return false
	}
	return h.ensureClient(ctx) != nil
}

// Health returns the cached connectivity state without dialing.
func (h *HiveMind) Health() Health {
	if h == nil {
		return HealthUnhealthy
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.health
}

// PublishActivity inserts a textual activity document. Screenshot and other
// binary keys are stripped so raw captures never leave the machine; transport
// failures are logged and reported as false.
func (h *HiveMind) PublishActivity(ctx context.Context, payload map[string]interface{}) bool {
	client := h.ensureClient(ctx)
	if client == nil {
		return false
	}

	clean := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		if k == "screenshot_path" || k == "screenshot" || k == "image_path" {
			continue
		}
		clean[k] = v
	}
	if _, ok := clean["created_at"]; !ok {
		clean["created_at"] = time.Now().UTC()
	}
	if _, ok := clean["org_id"]; !ok && h.defaultOrg != "" {
		clean["org_id"] = h.defaultOrg
	}

	coll := client.Database(h.dbName).Collection(h.activityCollection)
	if _, err := coll.InsertOne(ctx, clean); err != nil {
		log.Printf("[HIVEMIND] Failed to upload activity payload: %v", err)
		h.markUnhealthy()
		return false
	}
	h.markHealthy()
	return true
}

// QueryActivity fetches recent activity entries scoped to an org, and
// optionally to one project and a lower time bound. Results are sorted by
// timestamp descending and capped at limit.
func (h *HiveMind) QueryActivity(ctx context.Context, orgID, scope, projectName string, limit int, since *time.Time) ([]bson.M, error) {
	client := h.ensureClient(ctx)
	if client == nil {
		return nil, fmt.Errorf("hive mind is not connected")
	}

	if orgID == "" {
		orgID = h.defaultOrg
	}
	filter := bson.M{"org_id": orgID}
	if scope == "project" && projectName != "" {
		filter["project_name"] = projectName
	}
	if since != nil {
		filter["timestamp"] = bson.M{"$gte": *since}
	}
	if limit < 1 {
		limit = 1
	}

	coll := client.Database(h.dbName).Collection(h.activityCollection)
	cursor, err := coll.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit)))
	if err != nil {
		h.markUnhealthy()
		return nil, fmt.Errorf("activity query failed: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode activity documents: %w", err)
	}
	return docs, nil
}

// SaveSummary persists a session-level summary document (standup reports).
func (h *HiveMind) SaveSummary(ctx context.Context, document map[string]interface{}) bool {
	client := h.ensureClient(ctx)
	if client == nil {
		return false
	}

	coll := client.Database(h.dbName).Collection(h.summariesCollection)
	if _, err := coll.InsertOne(ctx, document); err != nil {
		log.Printf("[HIVEMIND] Failed to store session summary: %v", err)
		h.markUnhealthy()
		return false
	}
	h.markHealthy()
	return true
}

// QuerySummaries fetches recent high-level session summaries for an org.
func (h *HiveMind) QuerySummaries(ctx context.Context, orgID string, limit int) ([]bson.M, error) {
	client := h.ensureClient(ctx)
	if client == nil {
		return nil, fmt.Errorf("hive mind is not connected")
	}

	if orgID == "" {
		orgID = h.defaultOrg
	}
	if limit < 1 {
		limit = 1
	}

	coll := client.Database(h.dbName).Collection(h.summariesCollection)
	cursor, err := coll.Find(ctx, bson.M{"org_id": orgID}, options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit)))
	if err != nil {
		h.markUnhealthy()
		return nil, fmt.Errorf("summary query failed: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode summary documents: %w", err)
	}
	return docs, nil
}

// EnsureIndexes creates the query indexes used by the Oracle. Safe to call on
// every startup; a missing connection is not an error.
func (h *HiveMind) EnsureIndexes(ctx context.Context) error {
	client := h.ensureClient(ctx)
	if client == nil {
		return nil
	}

	db := client.Database(h.dbName)
	activity := []mongo.IndexModel{
		{Keys: bson.D{{Key: "org_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "org_id", Value: 1}, {Key: "project_name", Value: 1}, {Key: "timestamp", Value: -1}}},
	}
	if _, err := db.Collection(h.activityCollection).Indexes().CreateMany(ctx, activity); err != nil {
		return fmt.Errorf("failed to create activity indexes: %w", err)
	}

	summaries := []mongo.IndexModel{
		{Keys: bson.D{{Key: "org_id", Value: 1}, {Key: "timestamp", Value: -1}}},
	}
	if _, err := db.Collection(h.summariesCollection).Indexes().CreateMany(ctx, summaries); err != nil {
		return fmt.Errorf("failed to create summary indexes: %w", err)
	}
	return nil
}

// Ping checks whether the current connection is alive.
func (h *HiveMind) Ping(ctx context.Context) error {
	client := h.ensureClient(ctx)
	if client == nil {
		return fmt.Errorf("hive mind is not connected")
	}
	return client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client. The next call re-dials lazily.
func (h *HiveMind) Close(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.client == nil {
		return nil
	}
	err := h.client.Disconnect(ctx)
	h.client = nil
	h.health = HealthUnknown
	return err
}

// ensureClient dials the server once and caches the outcome. An unhealthy
// result is sticky until Close resets it, which keeps an unreachable endpoint
// from being retried on every tick.
func (h *HiveMind) ensureClient(ctx context.Context) *mongo.Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.client != nil {
		return h.client
	}
	if h.uri == "" || h.health == HealthUnhealthy {
		return nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(h.uri).
		SetServerSelectionTimeout(4 * time.Second).
		SetConnectTimeout(10 * time.Second).
		SetMaxPoolSize(10)

	client, err := mongo.Connect(dialCtx, clientOptions)
	if err != nil {
		log.Printf("[HIVEMIND] Unable to connect: %v", err)
		h.health = HealthUnhealthy
		return nil
	}
	if err := client.Ping(dialCtx, readpref.Primary()); err != nil {
		log.Printf("[HIVEMIND] Unable to reach server: %v", err)
		_ = client.Disconnect(context.Background())
		h.health = HealthUnhealthy
		return nil
	}

	h.client = client
	h.health = HealthHealthy
	log.Printf("[HIVEMIND] Connected to %s/%s", h.dbName, h.activityCollection)
	return h.client
}

// markUnhealthy records a transport failure. An established client is kept so
// the next cycle still gets one insert attempt; only the initial dial failure
// is sticky.
func (h *HiveMind) markUnhealthy() {
	h.mu.Lock()
	if h.client != nil {
		h.health = HealthUnhealthy
	}
	h.mu.Unlock()
}

func (h *HiveMind) markHealthy() {
	h.mu.Lock()
	h.health = HealthHealthy
	h.mu.Unlock()
}

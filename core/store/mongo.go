package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blaxing/gateway/core/types"
	"github.com/mudler/xlog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collAgents       = "agents"
	collStateCache   = "agent_state_cache"
	collConfig       = "config"
	collFlows        = "n8n_flows"
	collAudit        = "audit_logs"
	collStatusChecks = "status_checks"

	hooksConfigID = "hooks"
)

type MongoConfig struct {
	URL      string
	Database string
}

// MongoStore backs every collection with MongoDB. It is constructed
// once at process start and passed to the services that need it.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}

	xlog.Info("Connected to MongoDB", "database", cfg.Database)

	return &MongoStore{
		client: client,
		db:     client.Database(cfg.Database),
	}, nil
}

func (s *MongoStore) Agents() AgentStore             { return &mongoAgents{c: s.db.Collection(collAgents)} }
func (s *MongoStore) StateCache() StateCacheStore    { return &mongoStateCache{c: s.db.Collection(collStateCache)} }
func (s *MongoStore) Hooks() HooksStore              { return &mongoHooks{c: s.db.Collection(collConfig)} }
func (s *MongoStore) Flows() FlowStore               { return &mongoFlows{c: s.db.Collection(collFlows)} }
func (s *MongoStore) Audit() AuditStore              { return &mongoAudit{c: s.db.Collection(collAudit)} }
func (s *MongoStore) StatusChecks() StatusCheckStore { return &mongoChecks{c: s.db.Collection(collStatusChecks)} }

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

type mongoAgents struct {
	c *mongo.Collection
}

func (m *mongoAgents) Get(ctx context.Context, agentID string) (*types.AgentRecord, error) {
	var rec types.AgentRecord
	err := m.c.FindOne(ctx, bson.M{"agent_id": agentID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (m *mongoAgents) Put(ctx context.Context, rec types.AgentRecord) error {
	_, err := m.c.ReplaceOne(ctx,
		bson.M{"agent_id": rec.AgentID},
		rec,
		options.Replace().SetUpsert(true),
	)
	return err
}

func (m *mongoAgents) All(ctx context.Context) ([]types.AgentRecord, error) {
	// No sort: natural order matches insertion order for this workload.
	cursor, err := m.c.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	records := []types.AgentRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (m *mongoAgents) Count(ctx context.Context) (int64, error) {
	return m.c.CountDocuments(ctx, bson.M{})
}

func (m *mongoAgents) SetStateAll(ctx context.Context, state types.AgentState, updatedAt, activatedAt string) (int64, error) {
	set := bson.M{"state": state, "updated_at": updatedAt}
	if activatedAt != "" {
		set["activated_at"] = activatedAt
	}
	res, err := m.c.UpdateMany(ctx, bson.M{}, bson.M{"$set": set})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

type mongoStateCache struct {
	c *mongo.Collection
}

func (m *mongoStateCache) Get(ctx context.Context, agentID string) (*types.StateCacheEntry, error) {
	var entry types.StateCacheEntry
	err := m.c.FindOne(ctx, bson.M{"agent_id": agentID}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (m *mongoStateCache) Put(ctx context.Context, entry types.StateCacheEntry) error {
	_, err := m.c.ReplaceOne(ctx,
		bson.M{"agent_id": entry.AgentID},
		entry,
		options.Replace().SetUpsert(true),
	)
	return err
}

type mongoHooks struct {
	c *mongo.Collection
}

func (m *mongoHooks) Get(ctx context.Context) (types.HooksConfig, error) {
	var doc struct {
		types.HooksConfig `bson:",inline"`
	}
	err := m.c.FindOne(ctx, bson.M{"_id": hooksConfigID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return types.HooksConfig{}, nil
	}
	if err != nil {
		return types.HooksConfig{}, err
	}
	return doc.HooksConfig, nil
}

func (m *mongoHooks) Put(ctx context.Context, cfg types.HooksConfig) error {
	_, err := m.c.UpdateOne(ctx,
		bson.M{"_id": hooksConfigID},
		bson.M{"$set": bson.M{
			"activation":    cfg.Activation,
			"deactivation":  cfg.Deactivation,
			"status_change": cfg.StatusChange,
		}},
		options.Update().SetUpsert(true),
	)
	return err
}

type mongoFlows struct {
	c *mongo.Collection
}

func (m *mongoFlows) Get(ctx context.Context, name string) (*types.FlowRegistration, error) {
	var flow types.FlowRegistration
	err := m.c.FindOne(ctx, bson.M{"name": name}).Decode(&flow)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &flow, nil
}

func (m *mongoFlows) Put(ctx context.Context, flow types.FlowRegistration) error {
	_, err := m.c.ReplaceOne(ctx,
		bson.M{"name": flow.Name},
		flow,
		options.Replace().SetUpsert(true),
	)
	return err
}

func (m *mongoFlows) All(ctx context.Context) ([]types.FlowRegistration, error) {
	cursor, err := m.c.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	flows := []types.FlowRegistration{}
	if err := cursor.All(ctx, &flows); err != nil {
		return nil, err
	}
	return flows, nil
}

func (m *mongoFlows) Delete(ctx context.Context, name string) error {
	res, err := m.c.DeleteOne(ctx, bson.M{"name": name})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

type mongoAudit struct {
	c *mongo.Collection
}

func (m *mongoAudit) Append(ctx context.Context, entry types.AuditEntry) error {
	_, err := m.c.InsertOne(ctx, entry)
	return err
}

func (m *mongoAudit) List(ctx context.Context, page, limit int) ([]types.AuditEntry, int64, error) {
	total, err := m.c.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))

	cursor, err := m.c.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	entries := []types.AuditEntry{}
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

type mongoChecks struct {
	c *mongo.Collection
}

func (m *mongoChecks) Append(ctx context.Context, check types.StatusCheck) error {
	_, err := m.c.InsertOne(ctx, check)
	return err
}

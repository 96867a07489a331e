package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/jdelaire/dirtylaunderer/core/identity"
)

// Collection names.
const (
	GroupConfigCollection = "group_config"
	ConfigCollection      = "config"
	UserConsentCollection = "user_consent"

	proxiesDocID = "proxies"
)

var (
	ErrFailedToConnect   = errors.New("failed to connect to mongo")
	ErrHealthcheckFailed = errors.New("mongo healthcheck failed")
)

// Config describes how to reach MongoDB.
type Config struct {
	URL            string
	Database       string
	ConnectTimeout time.Duration
	RetryAttempts  int
	RetryInterval  time.Duration
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 2 * time.Second
	}
	return c
}

// Connect dials MongoDB, retrying until a ping succeeds or the attempts run
// out.
func Connect(ctx context.Context, cfg Config) (*mongo.Client, error) {
	cfg = cfg.withDefaults()

	var lastErr error
	for attempt := range cfg.RetryAttempts {
		client, err := mongo.Connect(
			options.Client().
				ApplyURI(cfg.URL).
				SetConnectTimeout(cfg.ConnectTimeout).
				SetRetryWrites(true).
				SetRetryReads(true),
		)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
			err = client.Ping(pingCtx, nil)
			cancel()
			if err == nil {
				return client, nil
			}
			_ = client.Disconnect(context.Background())
		}
		lastErr = err

		if attempt == cfg.RetryAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrFailedToConnect, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}

	return nil, errors.Join(ErrFailedToConnect, lastErr)
}

// Healthcheck returns a ping probe for the health endpoint.
func Healthcheck(client *mongo.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx, nil); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}

// Mongo is a Repository backed by a MongoDB database.
type Mongo struct {
	db     *mongo.Database
	hasher *identity.Hasher
	now    func() time.Time
}

// NewMongo wraps db.
func NewMongo(db *mongo.Database, hasher *identity.Hasher) *Mongo {
	if hasher == nil {
		hasher = identity.NewHasher("")
	}
	return &Mongo{db: db, hasher: hasher, now: time.Now}
}

type proxiesDoc struct {
	ID       string              `bson:"_id"`
	Services map[string][]string `bson:"services"`
}

type consentDoc struct {
	ID        string    `bson:"_id"`
	Timestamp time.Time `bson:"timestamp"`
}

func (m *Mongo) GroupConfig(ctx context.Context, chatID string) (GroupConfig, error) {
	if chatID == "" {
		return GroupConfig{}, ErrInvalidChatID
	}

	var cfg GroupConfig
	err := m.db.Collection(GroupConfigCollection).
		FindOne(ctx, bson.D{{Key: "_id", Value: chatID}}).
		Decode(&cfg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return DefaultGroupConfig(), nil
	}
	if err != nil {
		return GroupConfig{}, fmt.Errorf("find group config: %w", err)
	}
	return cloneGroup(cfg), nil
}

func (m *Mongo) UpdateGroupConfig(ctx context.Context, chatID string, cfg GroupConfig) error {
	if chatID == "" {
		return ErrInvalidChatID
	}

	set := bson.D{}
	if cfg.DefaultBehavior != "" {
		set = append(set, bson.E{Key: "default_behavior", Value: cfg.DefaultBehavior})
	}
	for key, rule := range hashRules(m.hasher, cfg.DomainRules) {
		set = append(set, bson.E{Key: "domain_rules." + key, Value: rule})
	}
	if len(set) == 0 {
		return nil
	}

	_, err := m.db.Collection(GroupConfigCollection).UpdateOne(ctx,
		bson.D{{Key: "_id", Value: chatID}},
		bson.D{{Key: "$set", Value: set}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("update group config: %w", err)
	}
	return nil
}

func (m *Mongo) ProxyConfig(ctx context.Context) (map[string][]string, error) {
	var doc proxiesDoc
	err := m.db.Collection(ConfigCollection).
		FindOne(ctx, bson.D{{Key: "_id", Value: proxiesDocID}}).
		Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return DefaultProxyConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("find proxy config: %w", err)
	}
	if doc.Services == nil {
		doc.Services = map[string][]string{}
	}
	return doc.Services, nil
}

func (m *Mongo) UpdateProxyConfig(ctx context.Context, proxies map[string][]string) error {
	doc := proxiesDoc{ID: proxiesDocID, Services: cloneProxies(proxies)}
	_, err := m.db.Collection(ConfigCollection).ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: proxiesDocID}},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("replace proxy config: %w", err)
	}
	return nil
}

func (m *Mongo) UserConsent(ctx context.Context, userKey string) (bool, error) {
	n, err := m.db.Collection(UserConsentCollection).
		CountDocuments(ctx, bson.D{{Key: "_id", Value: userKey}}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count user consent: %w", err)
	}
	return n > 0, nil
}

func (m *Mongo) SetUserConsent(ctx context.Context, userKey string, consent bool) error {
	coll := m.db.Collection(UserConsentCollection)
	filter := bson.D{{Key: "_id", Value: userKey}}

	if !consent {
		if _, err := coll.DeleteOne(ctx, filter); err != nil {
			return fmt.Errorf("delete user consent: %w", err)
		}
		return nil
	}

	doc := consentDoc{ID: userKey, Timestamp: m.now().UTC()}
	if _, err := coll.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("replace user consent: %w", err)
	}
	return nil
}

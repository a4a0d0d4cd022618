// Package mongo implements store.Store on MongoDB through the grove mongo
// driver. Mutations run inside multi-document transactions, so the server
// must be a replica set.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/contribution"
	"github.com/xraph/fundme/deployment"
	"github.com/xraph/fundme/store"
	"github.com/xraph/fundme/withdrawal"
)

// Collection name constants.
const (
	colDeployments   = "fundme_deployments"
	colContributors  = "fundme_contributors"
	colFunders       = "fundme_funders"
	colContributions = "fundme_contributions"
	colWithdrawals   = "fundme_withdrawals"
	colCounters      = "fundme_counters"
)

const (
	labelTransientTransaction = "TransientTransactionError"
	labelUnknownCommitResult  = "UnknownTransactionCommitResult"

	txRetryTimeout    = 30 * time.Second
	maxCommitAttempts = 5
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// Open connects to uri and uses the named database. An empty database
// falls back to the one in the URI path.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	mdb := mongodriver.New()
	var opts []mongodriver.MongoOption
	if database != "" {
		opts = append(opts, mongodriver.WithDatabase(database))
	}
	if err := mdb.Open(ctx, uri, opts...); err != nil {
		_ = mdb.Close()
		return nil, fmt.Errorf("fundme/mongo: %w", err)
	}
	db, err := grove.Open(mdb)
	if err != nil {
		_ = mdb.Close()
		return nil, fmt.Errorf("fundme/mongo: %w", err)
	}
	return New(db), nil
}

// New creates a store backed by a grove database opened with mongodriver.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Database returns the mongo database the store writes to.
func (s *Store) Database() *mongo.Database { return s.mdb.Database() }

// Migrate creates indexes for all fundme collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("fundme/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return mapClosed(err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	return s.db.Close()
}

// transact runs fn in a transaction, rerunning it while the server reports
// a transient conflict. fn must have no effects outside the session.
func (s *Store) transact(ctx context.Context, fn func(txCtx context.Context) error) error {
	deadline := time.Now().Add(txRetryTimeout)
	for {
		err := s.transactOnce(ctx, fn)
		if !hasLabel(err, labelTransientTransaction) || ctx.Err() != nil || time.Now().After(deadline) {
			return err
		}
	}
}

// transactOnce runs fn exactly once inside a transaction and commits it.
// Writes in fn use the session context it receives. Only the commit is
// retried, and only while the server reports its outcome as unknown.
func (s *Store) transactOnce(ctx context.Context, fn func(txCtx context.Context) error) error {
	sess, err := s.mdb.Client().StartSession()
	if err != nil {
		return mapClosed(fmt.Errorf("fundme/mongo: start session: %w", err))
	}
	detached := context.WithoutCancel(ctx)
	defer sess.EndSession(detached)

	if err := sess.StartTransaction(); err != nil {
		return fmt.Errorf("fundme/mongo: start transaction: %w", err)
	}
	if err := fn(mongo.NewSessionContext(ctx, sess)); err != nil {
		_ = sess.AbortTransaction(detached)
		return err
	}
	return commit(detached, sess.CommitTransaction)
}

// commit calls commitTx until it succeeds or fails with an error other than
// an unknown commit result.
func commit(ctx context.Context, commitTx func(context.Context) error) error {
	var err error
	for range maxCommitAttempts {
		if err = commitTx(ctx); err == nil {
			return nil
		}
		if !hasLabel(err, labelUnknownCommitResult) {
			break
		}
	}
	return fmt.Errorf("fundme/mongo: commit: %w", err)
}

// nextSeq bumps and returns a named counter.
func (s *Store) nextSeq(ctx context.Context, name string) (int64, error) {
	var c counterModel
	err := s.mdb.Collection(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&c)
	if err != nil {
		return 0, fmt.Errorf("fundme/mongo: next %s seq: %w", name, err)
	}
	return c.Seq, nil
}

// ==================== Contribution Store ====================

func (s *Store) RecordContribution(ctx context.Context, c *contribution.Contribution) error {
	addr := c.Contributor.Hex()

	return s.transact(ctx, func(ctx context.Context) error {
		var current contributorModel
		err := s.mdb.Collection(colContributors).FindOne(ctx, bson.M{"_id": addr}).Decode(&current)
		total := new(big.Int)
		switch {
		case isNoDocuments(err):
		case err != nil:
			return fmt.Errorf("fundme/mongo: load contributor: %w", err)
		default:
			if total, err = parseWei(current.Total); err != nil {
				return err
			}
		}
		total.Add(total, c.Value)

		_, err = s.mdb.Collection(colContributors).UpdateOne(ctx,
			bson.M{"_id": addr},
			bson.M{"$set": bson.M{"total": total.String()}},
			options.UpdateOne().SetUpsert(true),
		)
		if err != nil {
			return fmt.Errorf("fundme/mongo: update contributor: %w", err)
		}

		count, err := s.mdb.Collection(colFunders).CountDocuments(ctx, bson.M{})
		if err != nil {
			return fmt.Errorf("fundme/mongo: count funders: %w", err)
		}
		position := int(count)
		if _, err := s.mdb.Collection(colFunders).InsertOne(ctx, funderModel{Position: position, Address: addr}); err != nil {
			return fmt.Errorf("fundme/mongo: append funder: %w", err)
		}

		seq, err := s.nextSeq(ctx, colContributions)
		if err != nil {
			return err
		}
		c.Position = position
		if _, err := s.mdb.NewInsert(toContributionModel(c, seq)).Exec(ctx); err != nil {
			return fmt.Errorf("fundme/mongo: insert contribution: %w", err)
		}
		return nil
	})
}

func (s *Store) ContributedAmount(ctx context.Context, addr common.Address) (*big.Int, error) {
	var m contributorModel
	err := s.mdb.Collection(colContributors).FindOne(ctx, bson.M{"_id": addr.Hex()}).Decode(&m)
	if isNoDocuments(err) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("fundme/mongo: contributed amount: %w", err)
	}
	return parseWei(m.Total)
}

func (s *Store) FunderAt(ctx context.Context, position int) (common.Address, error) {
	if position < 0 {
		return common.Address{}, fmt.Errorf("%w: position %d", fundme.ErrIndexOutOfRange, position)
	}
	var m funderModel
	err := s.mdb.Collection(colFunders).FindOne(ctx, bson.M{"_id": position}).Decode(&m)
	if isNoDocuments(err) {
		return common.Address{}, fmt.Errorf("%w: position %d", fundme.ErrIndexOutOfRange, position)
	}
	if err != nil {
		return common.Address{}, fmt.Errorf("fundme/mongo: funder at %d: %w", position, err)
	}
	return common.HexToAddress(m.Address), nil
}

func (s *Store) FunderCount(ctx context.Context) (int, error) {
	count, err := s.mdb.Collection(colFunders).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("fundme/mongo: count funders: %w", err)
	}
	return int(count), nil
}

func (s *Store) Balance(ctx context.Context) (*big.Int, error) {
	cur, err := s.mdb.Collection(colContributors).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("fundme/mongo: balance: %w", err)
	}
	var models []contributorModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("fundme/mongo: balance: %w", err)
	}

	sum := new(big.Int)
	for _, m := range models {
		v, err := parseWei(m.Total)
		if err != nil {
			return nil, err
		}
		sum.Add(sum, v)
	}
	return sum, nil
}

func (s *Store) ListContributions(ctx context.Context, opts contribution.ListOpts) ([]*contribution.Contribution, error) {
	var models []contributionModel

	filter := bson.M{}
	if opts.Contributor != nil {
		filter["contributor"] = opts.Contributor.Hex()
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "seq", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("fundme/mongo: list contributions: %w", err)
	}

	result := make([]*contribution.Contribution, 0, len(models))
	for i := range models {
		c, err := fromContributionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, nil
}

// ==================== Withdrawal Store ====================

// Drain commits the reset, the cleared funder index and the receipt only
// after pay has run exactly once. The transaction is detached from ctx, which
// is checked just before pay and is the context pay receives.
func (s *Store) Drain(ctx context.Context, w *withdrawal.Withdrawal, pay withdrawal.PayoutFunc) error {
	var receipt *withdrawalModel

	err := s.transactOnce(context.WithoutCancel(ctx), func(txCtx context.Context) error {
		amount, err := s.Balance(txCtx)
		if err != nil {
			return err
		}

		cur, err := s.mdb.Collection(colFunders).Find(txCtx, bson.M{})
		if err != nil {
			return fmt.Errorf("fundme/mongo: load funders: %w", err)
		}
		var funders []funderModel
		if err := cur.All(txCtx, &funders); err != nil {
			return fmt.Errorf("fundme/mongo: load funders: %w", err)
		}
		distinct := make(map[string]struct{}, len(funders))
		for _, f := range funders {
			distinct[f.Address] = struct{}{}
		}

		if _, err := s.mdb.Collection(colContributors).UpdateMany(txCtx, bson.M{},
			bson.M{"$set": bson.M{"total": "0"}}); err != nil {
			return fmt.Errorf("fundme/mongo: reset totals: %w", err)
		}
		if _, err := s.mdb.Collection(colFunders).DeleteMany(txCtx, bson.M{}); err != nil {
			return fmt.Errorf("fundme/mongo: clear funders: %w", err)
		}

		seq, err := s.nextSeq(txCtx, colWithdrawals)
		if err != nil {
			return err
		}
		receipt = &withdrawalModel{
			ID:           w.ID.String(),
			Seq:          seq,
			Owner:        w.Owner.Hex(),
			Amount:       amount.String(),
			Funders:      len(funders),
			Contributors: len(distinct),
			CreatedAt:    w.CreatedAt,
		}
		if _, err := s.mdb.NewInsert(receipt).Exec(txCtx); err != nil {
			return fmt.Errorf("fundme/mongo: insert withdrawal: %w", err)
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		return pay(ctx, new(big.Int).Set(amount))
	})
	if err != nil {
		return err
	}

	amount, err := parseWei(receipt.Amount)
	if err != nil {
		return err
	}
	w.Amount = amount
	w.Funders = receipt.Funders
	w.Contributors = receipt.Contributors
	return nil
}

func (s *Store) ListWithdrawals(ctx context.Context, opts withdrawal.ListOpts) ([]*withdrawal.Withdrawal, error) {
	var models []withdrawalModel

	q := s.mdb.NewFind(&models).Sort(bson.D{{Key: "seq", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("fundme/mongo: list withdrawals: %w", err)
	}

	result := make([]*withdrawal.Withdrawal, 0, len(models))
	for i := range models {
		w, err := fromWithdrawalModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, w)
	}
	return result, nil
}

// ==================== Deployment Store ====================

func (s *Store) GetDeployment(ctx context.Context) (*deployment.Deployment, error) {
	var m deploymentModel
	err := s.mdb.NewFind(&m).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx)
	if isNoDocuments(err) {
		return nil, fundme.ErrDeploymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fundme/mongo: get deployment: %w", err)
	}
	return fromDeploymentModel(&m)
}

func (s *Store) CreateDeployment(ctx context.Context, d *deployment.Deployment) error {
	return s.transact(ctx, func(ctx context.Context) error {
		var existing deploymentModel
		err := s.mdb.NewFind(&existing).Scan(ctx)
		switch {
		case err == nil:
			return fmt.Errorf("%w: %s already recorded", fundme.ErrDeploymentMismatch, existing.ID)
		case !isNoDocuments(err):
			return fmt.Errorf("fundme/mongo: check deployment: %w", err)
		}
		if _, err := s.mdb.NewInsert(toDeploymentModel(d)).Exec(ctx); err != nil {
			return fmt.Errorf("fundme/mongo: create deployment: %w", err)
		}
		return nil
	})
}

// ==================== Helpers ====================

func parseWei(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("fundme/mongo: malformed amount %q", s)
	}
	return v, nil
}

func hasLabel(err error, label string) bool {
	var labeled mongo.LabeledError
	return errors.As(err, &labeled) && labeled.HasErrorLabel(label)
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// mapClosed tags errors from a closed client with fundme.ErrStoreClosed.
func mapClosed(err error) error {
	if errors.Is(err, grove.ErrDriverClosed) || errors.Is(err, mongo.ErrClientDisconnected) {
		return fmt.Errorf("%w: %w", fundme.ErrStoreClosed, err)
	}
	return err
}

// migrationIndexes returns the index definitions for all fundme collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colContributions: {
			{Keys: bson.D{{Key: "seq", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "contributor", Value: 1}, {Key: "seq", Value: 1}}},
		},
		colWithdrawals: {
			{Keys: bson.D{{Key: "seq", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colFunders: {
			{Keys: bson.D{{Key: "address", Value: 1}}},
		},
		colDeployments: {
			{Keys: bson.D{{Key: "created_at", Value: 1}}},
		},
	}
}

package store

import (
	"context"
	"encoding/json"
	"path"
	"sort"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
)

// The redis store implements the AccountStore interface using Redis as the backend.
// The keys namespace is organized as follows:
// - `/<prefix>/accounts/users` set of user IDs
// - `/<prefix>/accounts/user/<userID>` customer record
// - `/<prefix>/accounts/transactions/<userID>` list of transactions, most recent first
// - `/<prefix>/accounts/issues` list of issues
// - `/<prefix>/accounts/issues/seq` issue sequence counter

type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore returns an AccountStore backed by Redis.
func NewRedisStore(client *redis.Client, prefix string) AccountStore {
	return &redisStore{
		client: client,
		prefix: prefix,
	}
}

func (m *redisStore) usersKey() string {
	return path.Join(m.prefix, "accounts", "users")
}

func (m *redisStore) userKey(userID string) string {
	return path.Join(m.prefix, "accounts", "user", userID)
}

func (m *redisStore) transactionsKey(userID string) string {
	return path.Join(m.prefix, "accounts", "transactions", userID)
}

func (m *redisStore) issuesKey() string {
	return path.Join(m.prefix, "accounts", "issues")
}

func (m *redisStore) issueSeqKey() string {
	return path.Join(m.prefix, "accounts", "issues", "seq")
}

// ImportSnapshot loads the snapshot into Redis, replacing existing records
// of the same users.
func ImportSnapshot(ctx context.Context, client *redis.Client, prefix string, s *Snapshot) error {
	m := &redisStore{client: client, prefix: prefix}

	pipe := client.Pipeline()
	for id, u := range s.Users {
		data, err := json.Marshal(u)
		if err != nil {
			return errors.Wrap(err, "failed to marshal customer")
		}
		pipe.Set(ctx, m.userKey(id), data, 0)
		pipe.SAdd(ctx, m.usersKey(), id)
	}
	for id, list := range s.Transactions {
		key := m.transactionsKey(id)
		pipe.Del(ctx, key)
		for _, t := range list {
			data, err := json.Marshal(t)
			if err != nil {
				return errors.Wrap(err, "failed to marshal transaction")
			}
			pipe.RPush(ctx, key, data)
		}
	}
	for _, i := range s.Issues {
		data, err := json.Marshal(i)
		if err != nil {
			return errors.Wrap(err, "failed to marshal issue")
		}
		pipe.RPush(ctx, m.issuesKey(), data)
	}
	if len(s.Issues) > 0 {
		pipe.IncrBy(ctx, m.issueSeqKey(), int64(len(s.Issues)))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "failed to import snapshot to Redis")
	}
	logger.ContextKV(ctx, xlog.INFO, "status", "imported", "prefix", prefix, "users", len(s.Users))
	return nil
}

func (m *redisStore) GetCustomer(ctx context.Context, userID string) (*Customer, error) {
	data, err := m.client.Get(ctx, m.userKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errors.WithStack(ErrNotFound)
		}
		return nil, errors.Wrap(err, "failed to get customer from Redis")
	}

	u := new(Customer)
	if err = json.Unmarshal(data, u); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal customer")
	}
	return u, nil
}

func (m *redisStore) ListUserIDs(ctx context.Context) ([]string, error) {
	ids, err := m.client.SMembers(ctx, m.usersKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to list users from Redis")
	}
	sort.Strings(ids)
	return ids, nil
}

// update applies fn to the customer record in an optimistic transaction.
func (m *redisStore) update(ctx context.Context, userID string, fn func(*Customer)) error {
	key := m.userKey(userID)
	err := m.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return errors.WithStack(ErrNotFound)
			}
			return errors.Wrap(err, "failed to get customer from Redis")
		}

		u := new(Customer)
		if err = json.Unmarshal(data, u); err != nil {
			return errors.Wrap(err, "failed to unmarshal customer")
		}
		fn(u)

		data, err = json.Marshal(u)
		if err != nil {
			return errors.Wrap(err, "failed to marshal customer")
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return errors.Wrap(err, "failed to update customer in Redis")
	}
	return nil
}

func (m *redisStore) ChangePassword(ctx context.Context, userID, newPassword string) error {
	err := m.update(ctx, userID, func(u *Customer) {
		u.Password = HashPassword(newPassword)
	})
	if err == nil {
		logger.ContextKV(ctx, xlog.NOTICE, "status", "password_changed", "user_id", userID)
	}
	return err
}

func (m *redisStore) UpdateAddress(ctx context.Context, userID, newAddress string) error {
	err := m.update(ctx, userID, func(u *Customer) {
		u.Address = newAddress
	})
	if err == nil {
		logger.ContextKV(ctx, xlog.NOTICE, "status", "address_changed", "user_id", userID)
	}
	return err
}

func (m *redisStore) DeactivateCard(ctx context.Context, userID string) error {
	err := m.update(ctx, userID, func(u *Customer) {
		u.CardStatus = CardStatusDeactivated
	})
	if err == nil {
		logger.ContextKV(ctx, xlog.NOTICE, "status", "card_status_changed", "user_id", userID)
	}
	return err
}

func (m *redisStore) RecentTransactions(ctx context.Context, userID string, limit int) ([]*Transaction, error) {
	if limit == 0 {
		return []*Transaction{}, nil
	}
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	data, err := m.client.LRange(ctx, m.transactionsKey(userID), 0, stop).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, errors.Wrap(err, "failed to get transactions from Redis")
	}

	res := make([]*Transaction, 0, len(data))
	for _, item := range data {
		t := new(Transaction)
		if err := json.Unmarshal([]byte(item), t); err != nil {
			logger.ContextKV(ctx, xlog.ERROR, "reason", "unmarshal transaction", "err", err.Error())
			continue
		}
		res = append(res, t)
	}
	return res, nil
}

func (m *redisStore) ReportIssue(ctx context.Context, userID, description string) (*Issue, error) {
	seq, err := m.client.Incr(ctx, m.issueSeqKey()).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to allocate issue ID")
	}

	issue := &Issue{
		IssueID:     IssueID(int(seq)),
		UserID:      userID,
		Description: description,
		Status:      "open",
		CreatedAt:   time.Now().UTC(),
		Priority:    gofakeit.RandomString(IssuePriorities),
	}
	data, err := json.Marshal(issue)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal issue")
	}
	if err = m.client.RPush(ctx, m.issuesKey(), data).Err(); err != nil {
		return nil, errors.Wrap(err, "failed to store issue in Redis")
	}

	logger.ContextKV(ctx, xlog.NOTICE, "status", "issue_created", "issue_id", issue.IssueID, "user_id", userID)
	return issue, nil
}

func (m *redisStore) ListIssues(ctx context.Context, userID string) ([]*Issue, error) {
	data, err := m.client.LRange(ctx, m.issuesKey(), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, errors.Wrap(err, "failed to list issues from Redis")
	}

	var res []*Issue
	for _, item := range data {
		i := new(Issue)
		if err := json.Unmarshal([]byte(item), i); err != nil {
			logger.ContextKV(ctx, xlog.ERROR, "reason", "unmarshal issue", "err", err.Error())
			continue
		}
		if userID == "" || i.UserID == userID {
			res = append(res, i)
		}
	}
	return res, nil
}

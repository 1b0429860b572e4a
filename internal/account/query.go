package account

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-account/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-account/internal/activity"
	activityentity "github.com/ovaphlow/pitchfork/service-account/internal/activity/entity"
)

// AccountReader is the read-only part of the credential store.
type AccountReader interface {
	FindByID(ctx context.Context, id int64) (*entity.Account, error)
}

// QueryService serves profiles and activity history. It has no side effects.
type QueryService struct {
	accounts   AccountReader
	activities *activity.Service
	logger     *zap.SugaredLogger
}

func NewQueryService(accounts AccountReader, activities *activity.Service, logger *zap.SugaredLogger) *QueryService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &QueryService{accounts: accounts, activities: activities, logger: logger}
}

// GetAccount returns the profile of an account. It leaves out the username
// and mobile number.
func (q *QueryService) GetAccount(ctx context.Context, id int64) (*entity.Profile, error) {
	a, err := q.accounts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		q.logger.Errorw("get account failed", "err", err, "account_id", id)
		return nil, ErrInternal
	}
	p := a.Profile()
	return &p, nil
}

// GetActivities returns one page of the account's history, oldest first.
func (q *QueryService) GetActivities(ctx context.Context, id int64, page activity.Page) (activity.PageResult, error) {
	if _, err := q.GetAccount(ctx, id); err != nil {
		return activity.PageResult{}, err
	}
	res, err := q.activities.ListByAccount(ctx, id, page)
	if err != nil {
		if errors.Is(err, activity.ErrInvalidCursor) {
			return activity.PageResult{}, invalidInput("cursor is malformed")
		}
		q.logger.Errorw("list activities failed", "err", err, "account_id", id)
		return activity.PageResult{}, ErrInternal
	}
	if res.Items == nil {
		res.Items = []activityentity.Event{}
	}
	return res, nil
}

// RecentActivities returns the account's newest events, newest first.
func (q *QueryService) RecentActivities(ctx context.Context, id int64, limit int) ([]activityentity.Event, error) {
	events, err := q.activities.Recent(ctx, id, limit)
	if err != nil {
		q.logger.Errorw("list recent activities failed", "err", err, "account_id", id)
		return nil, ErrInternal
	}
	if events == nil {
		events = []activityentity.Event{}
	}
	return events, nil
}

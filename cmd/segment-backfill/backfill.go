package main

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"backoffice-svc/analytics"
	"backoffice-svc/models"

	"go.uber.org/zap"
)

const actor = "segment-backfill"

// derived are the stored customer fields the backfill owns.
type derived struct {
	Segment    models.Segment
	Engagement int
	Churn      models.RiskLevel
}

func (d derived) mutation() models.Mutation {
	return models.Mutation{
		Kind: models.MutationFieldUpdate,
		Fields: map[string]any{
			"segmentation":    string(d.Segment),
			"engagementScore": d.Engagement,
			"churnRisk":       string(d.Churn),
		},
		Reason: "scheduled segment recompute",
	}
}

func derive(c *models.Customer, orders []models.Order, totals analytics.TotalsSource, now time.Time) derived {
	t := totals.Totals(c, orders)
	churn := analytics.ChurnRisk(t, c.RegistrationDate, now)
	return derived{
		Segment:    analytics.StoredSegment(t, churn),
		Engagement: analytics.EngagementScore(t, now),
		Churn:      churn,
	}
}

// plan groups customers whose stored fields are stale by their new values, so
// each group becomes one field_update batch.
type plan struct {
	groups    map[derived][]string
	unchanged int
}

func (p plan) pending() int {
	n := 0
	for _, ids := range p.groups {
		n += len(ids)
	}
	return n
}

func buildPlan(customers []models.Customer, ordersByCustomer map[string][]models.Order, totals analytics.TotalsSource, now time.Time) plan {
	p := plan{groups: make(map[derived][]string)}
	for i := range customers {
		c := &customers[i]
		d := derive(c, ordersByCustomer[c.CustomerID], totals, now)
		if c.Segmentation == d.Segment && c.EngagementScore == d.Engagement && c.ChurnRisk == d.Churn {
			p.unchanged++
			continue
		}
		p.groups[d] = append(p.groups[d], c.CustomerID)
	}
	return p
}

func groupByCustomer(orders []models.Order) map[string][]models.Order {
	out := make(map[string][]models.Order)
	for _, o := range orders {
		out[o.CustomerID] = append(out[o.CustomerID], o)
	}
	return out
}

func chunk(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

type executor interface {
	Execute(ctx context.Context, entityType string, ids []string, m models.Mutation, actor string) (*models.BulkOperationResult, error)
}

type progress interface {
	Add(n int) error
}

type summary struct {
	Updated int
	Failed  int
	Batches int
}

// apply runs the plan through the bulk executor in deterministic group order.
func apply(ctx context.Context, ex executor, p plan, batchSize int, bar progress, logger *zap.Logger) (summary, error) {
	keys := make([]derived, 0, len(p.groups))
	for k := range p.groups {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b derived) int {
		if c := cmp.Compare(a.Segment, b.Segment); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Churn, b.Churn); c != 0 {
			return c
		}
		return cmp.Compare(a.Engagement, b.Engagement)
	})

	var s summary
	for _, k := range keys {
		ids := slices.Clone(p.groups[k])
		slices.Sort(ids)
		for _, batch := range chunk(ids, batchSize) {
			result, err := ex.Execute(ctx, string(models.EntityCustomer), batch, k.mutation(), actor)
			if err != nil {
				return s, fmt.Errorf("failed to run batch for segment %s: %w", k.Segment, err)
			}
			s.Batches++
			s.Updated += result.SuccessCount
			s.Failed += result.FailureCount
			for _, f := range result.Failed {
				logger.Warn("Customer not updated",
					zap.String("customer_id", f.ID),
					zap.String("code", f.Code),
					zap.String("error", f.Error),
				)
			}
			_ = bar.Add(len(batch))
		}
	}
	return s, nil
}

type totalsReader interface {
	CustomerTotals(ctx context.Context, id string) (models.CustomerTotals, error)
}

// reportDrift compares the incremented counters with a recompute from orders.
func reportDrift(ctx context.Context, store totalsReader, customers []models.Customer, ordersByCustomer map[string][]models.Order, logger *zap.Logger) (int, error) {
	drifted := 0
	for _, c := range customers {
		stored, err := store.CustomerTotals(ctx, c.CustomerID)
		if err != nil {
			return drifted, fmt.Errorf("failed to read totals for %s: %w", c.CustomerID, err)
		}
		if d, ok := analytics.CheckDrift(c.CustomerID, stored, ordersByCustomer[c.CustomerID]); ok {
			drifted++
			logger.Warn("Customer totals drifted", zap.String("customer_id", c.CustomerID), zap.Stringer("drift", d))
		}
	}
	return drifted, nil
}

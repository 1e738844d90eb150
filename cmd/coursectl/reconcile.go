package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/coursehub/internal/app"
	"github.com/xenking/coursehub/internal/domain/course"
	"github.com/xenking/coursehub/internal/domain/enrollment"
	"github.com/xenking/coursehub/internal/domain/order"
	"github.com/xenking/coursehub/internal/domain/payment"
	"github.com/xenking/coursehub/internal/gateway"
	"github.com/xenking/coursehub/internal/storage/postgres"
)

type confirmer interface {
	Confirm(ctx context.Context, req payment.ConfirmRequest) (*payment.Confirmation, error)
}

type reconcileResult struct {
	OrderID string
	Conf    *payment.Confirmation
	Err     error
}

// reconcileOrders confirms every order as a trusted operator, at most
// concurrency at a time. A failing order does not stop the others.
func reconcileOrders(ctx context.Context, c confirmer, ids []string, concurrency int) []reconcileResult {
	results := make([]reconcileResult, len(ids))

	var g errgroup.Group
	g.SetLimit(max(concurrency, 1))
	for i, id := range ids {
		g.Go(func() error {
			conf, err := c.Confirm(ctx, payment.ConfirmRequest{
				OrderID: id,
				Trigger: payment.TriggerOperator,
			})
			if err != nil {
				zctx.From(ctx).Warn("Reconcile failed", zap.String("order_id", id), zap.Error(err))
			}
			results[i] = reconcileResult{OrderID: id, Conf: conf, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// printResults writes one tab-separated line per order and returns the
// number of failures.
func printResults(w io.Writer, results []reconcileResult) (failed int) {
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(w, "%s\terror\t%v\n", r.OrderID, r.Err)
			continue
		}
		enrollmentID := "-"
		if e := r.Conf.Result.Enrollment; e != nil {
			enrollmentID = e.ID
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.OrderID, r.Conf.Status.Raw, r.Conf.Source, r.Conf.Result.Outcome, enrollmentID)
	}
	return failed
}

// newConfirmer wires the confirmation pipeline without telemetry.
func newConfirmer(cfg *app.Config, pool *pgxpool.Pool, notifier enrollment.Notifier) (*order.Ledger, *payment.Confirmer) {
	courses := postgres.NewCourseRepository(pool)
	ledger := order.NewLedger(postgres.NewOrderRepository(pool), cfg.Gateway.Provider)
	enrollments := enrollment.NewService(postgres.NewEnrollmentRepository(pool))
	return ledger, payment.NewConfirmer(
		ledger,
		gateway.New(cfg.GatewayClient()),
		course.NewResolver(courses),
		courses,
		payment.NewReconciler(enrollments, notifier),
		nil,
	)
}

func reconcileCmd() *cobra.Command {
	var (
		stale       time.Duration
		statuses    []string
		limit       int
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "reconcile [order-id...]",
		Short: "Confirm orders with the provider and enroll the paid ones",
		Long: `Runs the payment confirmation for the given orders, or for every order
older than --stale that is still in one of the --status values.

Use it after fixing a catalog problem that left paid orders unresolved, or
when webhooks were lost. Reconciling is idempotent.

Output columns: order, status, status source, outcome, enrollment.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case len(args) == 0 && stale <= 0:
				return errors.New("pass order ids or --stale")
			case len(args) > 0 && stale > 0:
				return errors.New("order ids and --stale are mutually exclusive")
			}

			ctx := cmd.Context()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			notifiers, err := app.NewNotifiers(cfg)
			if err != nil {
				return errors.Wrap(err, "create notifiers")
			}
			defer notifiers.Close()

			ledger, c := newConfirmer(cfg, pool, notifiers)
			ids := args
			if stale > 0 {
				orders, err := ledger.ListStale(ctx, statuses, stale, limit)
				if err != nil {
					return err
				}
				for _, o := range orders {
					ids = append(ids, o.ID)
				}
				zctx.From(ctx).Info("Found stale orders",
					zap.Int("count", len(ids)),
					zap.Strings("statuses", statuses),
					zap.Duration("older_than", stale),
				)
			}

			results := reconcileOrders(ctx, c, ids, concurrency)
			if failed := printResults(cmd.OutOrStdout(), results); failed > 0 {
				return errors.Errorf("%d of %d orders failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&stale, "stale", 0, "reconcile orders created more than this long ago")
	cmd.Flags().StringSliceVar(&statuses, "status", []string{order.StatusCreated, "ACTIVE", "PENDING"},
		"local statuses considered stale")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of stale orders")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 4, "orders confirmed in parallel")
	return cmd
}

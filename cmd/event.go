package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	paymentmodel "github.com/frahmantamala/client-portal/internal/core/datamodel/payment"
	"github.com/frahmantamala/client-portal/internal/core/events"
	"github.com/frahmantamala/client-portal/internal/notification"
	paymentpg "github.com/frahmantamala/client-portal/internal/payment/postgres"
	"github.com/frahmantamala/client-portal/internal/user"
	userpg "github.com/frahmantamala/client-portal/internal/user/postgres"
	"github.com/frahmantamala/client-portal/pkg/logger"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Replay settlement events through the same subscribers the server registers`,
}

var resendPaymentID int64

var resendEmailCmd = &cobra.Command{
	Use:   "resend-email",
	Short: "Resend the settlement email of a completed or failed payment",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return resendSettlementEmail(ctx, resendPaymentID)
	},
}

func resendSettlementEmail(ctx context.Context, paymentID int64) error {
	if paymentID <= 0 {
		return errors.New("--payment-id is required")
	}

	cfg, err := loadConfig(configDir)
	if err != nil {
		return err
	}
	initLogger(cfg)
	log := logger.L()

	db, err := initDB(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	gdb, err := initGorm(db, cfg.Env)
	if err != nil {
		return err
	}

	p, err := paymentpg.NewPaymentRepository(gdb).GetByID(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("load payment %d: %w", paymentID, err)
	}

	var event events.Event
	switch p.Status {
	case paymentmodel.StatusCompleted:
		event = events.NewPaymentCompletedEvent(p.ID, p.OwnerID, p.Amount, p.Currency, p.Description, p.SessionID(), "cli_resend")
	case paymentmodel.StatusFailed:
		event = events.NewPaymentFailedEvent(p.ID, p.OwnerID, p.Amount, p.Currency, p.Description, p.SessionID(), "cli_resend")
	default:
		return fmt.Errorf("payment %d is %s; only settled payments have an email to resend", p.ID, p.Status)
	}

	bus := events.NewEventBus(log)
	mail := newMailer(cfg, log)
	users := user.NewService(userpg.NewUserRepository(gdb))
	notification.NewEmailNotifier(users, mail, log).Register(bus)

	if err := bus.PublishSync(ctx, event); err != nil {
		return err
	}
	log.Info("settlement email resent", "payment_id", p.ID, "event_type", event.EventType())
	return nil
}

func init() {
	resendEmailCmd.Flags().Int64Var(&resendPaymentID, "payment-id", 0, "id of the settled payment")
	eventCmd.AddCommand(resendEmailCmd)
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/medbox-iot/medbox/config"
	"github.com/medbox-iot/medbox/core/dispense"
	"github.com/medbox-iot/medbox/core/history"
	"github.com/medbox-iot/medbox/core/model"
	"github.com/medbox-iot/medbox/infra/logger"
	"github.com/medbox-iot/medbox/infra/mqtt"
	"github.com/medbox-iot/medbox/infra/store"
	"github.com/medbox-iot/medbox/internal/eventbus"
)

var (
	dispenseBox      string
	dispenseMagazine int
	dispenseAmount   int
)

var dispenseCmd = &cobra.Command{
	Use:   "dispense",
	Short: "Trigger a manual dispense on a box",
	RunE:  runDispense,
}

func init() {
	dispenseCmd.Flags().StringVar(&dispenseBox, "box", "", "target box id (defaults to dispense.default_box)")
	dispenseCmd.Flags().IntVar(&dispenseMagazine, "magazine", 1, "magazine id to dispense from")
	dispenseCmd.Flags().IntVar(&dispenseAmount, "amount", 1, "number of units to release")
	rootCmd.AddCommand(dispenseCmd)
}

func runDispense(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if dispenseAmount <= 0 {
		return fmt.Errorf("amount must be positive")
	}

	logg := logger.New("dispense-command")
	db, err := store.Open(cfg.Store, logger.New("store"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logg.Errorf("store close: %v", err)
		}
	}()

	mags, err := db.Magazines(ctx)
	if err != nil {
		return fmt.Errorf("load magazines: %w", err)
	}
	var magazine *model.Magazine
	for i := range mags {
		if mags[i].ID == dispenseMagazine {
			magazine = &mags[i]
			break
		}
	}
	if magazine == nil {
		return fmt.Errorf("unknown magazine %d", dispenseMagazine)
	}

	connector, err := mqtt.NewPahoConnector(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("mqtt connector: %w", err)
	}
	defer connector.Disconnect()

	coordinator, err := dispense.NewCoordinator(connector, cfg.MQTT.TopicPrefix, cfg.Dispense.AckTimeout(), logger.New("coordinator"))
	if err != nil {
		return fmt.Errorf("coordinator: %w", err)
	}
	bus := eventbus.New()
	defer bus.Close()
	dispenser, err := dispense.NewDispenser(coordinator, history.NewRecorder(db, logg), bus, logg)
	if err != nil {
		return fmt.Errorf("dispenser: %w", err)
	}

	box := dispenseBox
	if box == "" {
		box = cfg.Dispense.DefaultBox
	}
	items := []model.PlanItem{{MagazineID: magazine.ID, MagazineName: magazine.Name, Amount: dispenseAmount}}

	// the connector retries in the background; give it a moment
	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for !connector.Connected() {
		select {
		case <-waitCtx.Done():
			return fmt.Errorf("broker connection not established")
		case <-time.After(100 * time.Millisecond):
		}
	}

	if err := dispenser.Dispense(ctx, box, items, model.OriginManual); err != nil {
		return fmt.Errorf("dispense: %w", err)
	}
	logg.Infof("dispensed %d units from %s on box %s", dispenseAmount, magazine.Name, box)
	return nil
}

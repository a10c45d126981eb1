package main

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"flowq/internal/cleanup"
	"flowq/internal/config"
	"flowq/internal/flow"
	"flowq/internal/logging"
	"flowq/internal/queue"
	"flowq/internal/scheduler"
	"flowq/internal/supervisor"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

// services bundles everything a command needs against one open store.
type services struct {
	cfg        *config.Config
	store      *queue.Store
	scheduler  *scheduler.Service
	cleanup    *cleanup.Service
	supervisor *supervisor.Supervisor
	entities   *flow.Entities
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// withServices opens the store, builds the services and closes the store when
// fn returns. CLI commands log warnings and errors to stderr only.
func (c *commandContext) withServices(cmd *cobra.Command, fn func(*services) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Options{
		Level:            "warn",
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	svc, err := scheduler.New(cfg, store, logger)
	if err != nil {
		return err
	}
	maint, err := cleanup.New(cfg, store, logger)
	if err != nil {
		return err
	}
	sup, err := supervisor.New(cfg, store, logger)
	if err != nil {
		return err
	}
	return fn(&services{
		cfg:        cfg,
		store:      store,
		scheduler:  svc,
		cleanup:    maint,
		supervisor: sup,
		entities:   flow.NewEntities(store.DB()),
	})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func parseID(value, label string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", label, value)
	}
	return id, nil
}

func parseRef(typeValue, idValue string) (queue.ItemRef, error) {
	itemType, ok := queue.ParseItemType(typeValue)
	if !ok {
		return queue.ItemRef{}, fmt.Errorf("unknown item type %q (want ticket, task, chat or prompt)", typeValue)
	}
	id, err := parseID(idValue, "reference id")
	if err != nil {
		return queue.ItemRef{}, err
	}
	return queue.ItemRef{Type: itemType, ID: id}, nil
}

// describeError prefixes queue error kinds with an operator hint.
func describeError(err error) string {
	switch queue.ErrorKind(err) {
	case queue.KindNotFound:
		return "not found: " + err.Error()
	case queue.KindInvalidArgument:
		return "invalid argument: " + err.Error()
	case queue.KindInvalidState:
		return "rejected: " + err.Error()
	case queue.KindTimeout:
		return "rejected: " + err.Error() + " (requeue it to run again)"
	}
	return err.Error()
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

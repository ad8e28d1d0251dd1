package transform

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/illmade-knight/go-quake/pkg/types"
	"github.com/rs/zerolog"
)

// DefaultCommand rebuilds the dbt models from the raw table.
const DefaultCommand = "dbt clean && dbt run --profiles-dir ."

// CommandTransformerConfig configures the shell command run after a load.
type CommandTransformerConfig struct {
	Command string
	Dir     string
	// Timeout bounds a single command invocation. Zero means no bound beyond ctx.
	Timeout time.Duration
}

// CommandTransformer runs the transformation as an external shell command.
// The trigger is exposed to the command as QUAKE_RUN_ID, QUAKE_TABLE and QUAKE_ROWS.
type CommandTransformer struct {
	cfg    CommandTransformerConfig
	logger zerolog.Logger
}

func NewCommandTransformer(cfg CommandTransformerConfig, logger zerolog.Logger) (*CommandTransformer, error) {
	if cfg.Command == "" {
		return nil, errors.New("transform command cannot be empty")
	}
	return &CommandTransformer{
		cfg:    cfg,
		logger: logger.With().Str("component", "CommandTransformer").Logger(),
	}, nil
}

// Transform runs the command to completion. A non-zero exit is a TransformFailure.
func (c *CommandTransformer) Transform(ctx context.Context, trigger Trigger) types.TransformResult {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	if err := checkDir(c.cfg.Dir); err != nil {
		c.logger.Error().Err(err).Str("run_id", trigger.RunID).Msg("Transform directory unavailable")
		return types.TransformResult{Failure: types.NewFailure(types.TransformFailure, err)}
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", c.cfg.Command)
	cmd.Dir = c.cfg.Dir
	cmd.Env = append(os.Environ(),
		"QUAKE_RUN_ID="+trigger.RunID,
		"QUAKE_TABLE="+trigger.Table,
		"QUAKE_ROWS="+strconv.Itoa(trigger.Rows),
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	c.logger.Info().Str("run_id", trigger.RunID).Str("command", c.cfg.Command).Str("dir", c.cfg.Dir).Msg("Running transform command")
	start := time.Now()
	err := cmd.Run()
	c.logOutput(trigger.RunID, out.Bytes())

	if err != nil {
		c.logger.Error().Err(err).Str("run_id", trigger.RunID).Dur("elapsed", time.Since(start)).Msg("Transform command failed")
		return types.TransformResult{
			Detail:  fmt.Sprintf("exit status %d", cmd.ProcessState.ExitCode()),
			Failure: types.NewFailure(types.TransformFailure, fmt.Errorf("transform command %q: %w", c.cfg.Command, err)),
		}
	}
	c.logger.Info().Str("run_id", trigger.RunID).Dur("elapsed", time.Since(start)).Msg("Transform command completed")
	return types.TransformResult{Detail: "exit status 0"}
}

// checkDir is evaluated per run so a project checked out after startup is picked up.
func checkDir(dir string) error {
	if dir == "" {
		return nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("transform dir %q: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("transform dir %q is not a directory", dir)
	}
	return nil
}

func (c *CommandTransformer) logOutput(runID string, output []byte) {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		c.logger.Debug().Str("run_id", runID).Msg(scanner.Text())
	}
}

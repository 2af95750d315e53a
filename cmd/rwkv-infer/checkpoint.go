package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cahya-wirawan/web-rwkv/checkpoint"
	"github.com/cahya-wirawan/web-rwkv/internal/device"
	"github.com/cahya-wirawan/web-rwkv/internal/synth"
	"github.com/cahya-wirawan/web-rwkv/job"
	"github.com/cahya-wirawan/web-rwkv/state"
)

func newCheckpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Save or load recurrent state checkpoints",
	}
	cmd.AddCommand(newCheckpointSaveCmd())
	cmd.AddCommand(newCheckpointLoadCmd())
	return cmd
}

func newCheckpointSaveCmd() *cobra.Command {
	var configPath, dataDir, run, tokenCSV string

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Step a model forward and save its resulting state under a run name",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := defaultModelConfig()
			if configPath != "" {
				loaded, err := loadModelConfig(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			info, err := cfg.toInfo()
			if err != nil {
				return err
			}
			tokens, err := parseTokenCSV(tokenCSV)
			if err != nil {
				return err
			}

			dev := device.NewCPUDevice()
			m, err := synth.BuildModel(dev, info)
			if err != nil {
				return fmt.Errorf("building model: %w", err)
			}
			st, err := state.New(dev, info, 1)
			if err != nil {
				return fmt.Errorf("allocating state: %w", err)
			}

			b := &job.Builder{Dev: dev, Model: m}
			infoCall := job.InferInfo{{Tokens: tokens, Output: false}}
			j, err := b.Build(st, infoCall)
			if err != nil {
				return fmt.Errorf("build: %w", err)
			}
			if err := j.Load(infoCall); err != nil {
				return fmt.Errorf("load: %w", err)
			}
			if err := j.Submit(); err != nil {
				return fmt.Errorf("submit: %w", err)
			}
			if _, err := j.Back(); err != nil {
				return fmt.Errorf("back: %w", err)
			}

			cp, err := state.Snapshot(st, 0)
			if err != nil {
				return fmt.Errorf("snapshot: %w", err)
			}

			store, err := checkpoint.Open(checkpoint.Options{DataDir: dataDir})
			if err != nil {
				return fmt.Errorf("opening checkpoint store: %w", err)
			}
			defer store.Close()

			if err := store.Save(run, 0, cp); err != nil {
				return fmt.Errorf("saving checkpoint: %w", err)
			}
			fmt.Printf("saved checkpoint run=%q batch=0 to %s\n", run, dataDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a model topology YAML file")
	cmd.Flags().StringVar(&dataDir, "data-dir", "./rwkv-checkpoints", "checkpoint store directory")
	cmd.Flags().StringVar(&run, "run", "default", "checkpoint run name")
	cmd.Flags().StringVar(&tokenCSV, "tokens", "1,2,3", "comma-separated token ids to feed through before saving")
	return cmd
}

func newCheckpointLoadCmd() *cobra.Command {
	var configPath, dataDir, run, tokenCSV string
	var topK int

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Restore a saved state and continue inference from it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := defaultModelConfig()
			if configPath != "" {
				loaded, err := loadModelConfig(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			info, err := cfg.toInfo()
			if err != nil {
				return err
			}
			tokens, err := parseTokenCSV(tokenCSV)
			if err != nil {
				return err
			}

			store, err := checkpoint.Open(checkpoint.Options{DataDir: dataDir})
			if err != nil {
				return fmt.Errorf("opening checkpoint store: %w", err)
			}
			defer store.Close()

			cp, err := store.Load(run, 0)
			if err != nil {
				return fmt.Errorf("loading checkpoint: %w", err)
			}

			dev := device.NewCPUDevice()
			m, err := synth.BuildModel(dev, info)
			if err != nil {
				return fmt.Errorf("building model: %w", err)
			}
			st, err := state.New(dev, info, 1)
			if err != nil {
				return fmt.Errorf("allocating state: %w", err)
			}
			if err := state.Restore(st, 0, cp); err != nil {
				return fmt.Errorf("restoring checkpoint: %w", err)
			}

			b := &job.Builder{Dev: dev, Model: m}
			infoCall := job.InferInfo{{Tokens: tokens, Output: true}}
			j, err := b.Build(st, infoCall)
			if err != nil {
				return fmt.Errorf("build: %w", err)
			}
			if err := j.Load(infoCall); err != nil {
				return fmt.Errorf("load: %w", err)
			}
			if err := j.Submit(); err != nil {
				return fmt.Errorf("submit: %w", err)
			}
			out, err := j.Back()
			if err != nil {
				return fmt.Errorf("back: %w", err)
			}
			printTopK(out, topK)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a model topology YAML file (must match the config used for save)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "./rwkv-checkpoints", "checkpoint store directory")
	cmd.Flags().StringVar(&run, "run", "default", "checkpoint run name")
	cmd.Flags().StringVar(&tokenCSV, "tokens", "4,5", "comma-separated token ids to feed through after restoring")
	cmd.Flags().IntVar(&topK, "top-k", 5, "number of highest-probability tokens to print")
	return cmd
}

package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cahya-wirawan/web-rwkv/internal/device"
	catalog "github.com/cahya-wirawan/web-rwkv/internal/ops"
	"github.com/cahya-wirawan/web-rwkv/internal/synth"
	"github.com/cahya-wirawan/web-rwkv/job"
	"github.com/cahya-wirawan/web-rwkv/state"
)

func newRunCmd() *cobra.Command {
	var configPath string
	var tokenCSV string
	var steps int
	var topK int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Step a synthetic model forward and print top-k logits",
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
			if len(tokens) == 0 {
				return fmt.Errorf("run: --tokens must name at least one token id")
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

			for step := 0; step < steps; step++ {
				last := step == steps-1
				infoCall := job.InferInfo{{Tokens: tokens, Output: last}}

				j, err := b.Build(st, infoCall)
				if err != nil {
					return fmt.Errorf("step %d: build: %w", step, err)
				}
				if err := j.Load(infoCall); err != nil {
					return fmt.Errorf("step %d: load: %w", step, err)
				}
				if err := j.Submit(); err != nil {
					return fmt.Errorf("step %d: submit: %w", step, err)
				}
				out, err := j.Back()
				if err != nil {
					return fmt.Errorf("step %d: back: %w", step, err)
				}

				if last {
					printTopK(out, topK)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a model topology YAML file (defaults to a small built-in v4 model)")
	cmd.Flags().StringVar(&tokenCSV, "tokens", "1,2,3", "comma-separated token ids to feed through, once per step")
	cmd.Flags().IntVar(&steps, "steps", 1, "number of times to feed the token sequence through, carrying state forward")
	cmd.Flags().IntVar(&topK, "top-k", 5, "number of highest-probability tokens to print for the final step")
	return cmd
}

func newInitConfigCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write a default model topology YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := writeDefaultConfig(out); err != nil {
				return err
			}
			fmt.Printf("wrote default config to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "rwkv-infer.yaml", "output path")
	return cmd
}

func parseTokenCSV(csv string) ([]uint16, error) {
	fields := strings.Split(csv, ",")
	out := make([]uint16, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("parsing token id %q: %w", f, err)
		}
		out = append(out, uint16(n))
	}
	return out, nil
}

func printTopK(out job.InferOutput, k int) {
	for b, logits := range out {
		if logits == nil {
			continue
		}
		probs := catalog.Softmax([][]float32{logits})[0]
		type scored struct {
			id   int
			prob float32
		}
		ranked := make([]scored, len(probs))
		for i, p := range probs {
			ranked[i] = scored{id: i, prob: p}
		}
		sort.Slice(ranked, func(i, j int) bool { return ranked[i].prob > ranked[j].prob })
		if k > len(ranked) {
			k = len(ranked)
		}
		fmt.Printf("batch %d:\n", b)
		for _, s := range ranked[:k] {
			fmt.Printf("  token %5d  p=%.4f\n", s.id, s.prob)
		}
	}
}

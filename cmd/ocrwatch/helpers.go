package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	apperrors "github.com/GriffinCanCode/ocrwatch/internal/errors"
	"github.com/GriffinCanCode/ocrwatch/internal/ocrutil"
	"github.com/GriffinCanCode/ocrwatch/internal/textmatch"
)

// lookupFlags are shared by the one-shot commands.
type lookupFlags struct {
	timeout    time.Duration
	confidence float64
	mode       string
	region     []int
	offset     []int
	target     []int
	double     bool
	strategy   string
	duration   time.Duration
}

func (f *lookupFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.DurationVar(&f.timeout, "timeout", ocrutil.DefaultTimeout, "how long to keep looking")
	fs.Float64Var(&f.confidence, "confidence", ocrutil.DefaultConfidence, "minimum confidence")
	fs.StringVar(&f.mode, "mode", string(textmatch.Exact), "match mode: exact, contains, startswith, endswith, regex")
	fs.IntSliceVar(&f.region, "region", nil, "x1,y1,x2,y2 search rectangle")
}

func (f *lookupFlags) options() ([]ocrutil.Option, error) {
	mode := textmatch.Mode(f.mode)
	if !mode.Known() {
		return nil, apperrors.Newf(apperrors.CodeInvalidArgument, "unknown match mode %q", f.mode)
	}
	opts := []ocrutil.Option{
		ocrutil.WithTimeout(f.timeout),
		ocrutil.WithConfidence(f.confidence),
		ocrutil.WithMode(mode),
	}
	if len(f.region) > 0 {
		if len(f.region) != 4 {
			return nil, apperrors.New(apperrors.CodeInvalidArgument, "--region needs x1,y1,x2,y2")
		}
		opts = append(opts, ocrutil.WithRegion(f.region[0], f.region[1], f.region[2], f.region[3]))
	}
	if len(f.offset) > 0 {
		if len(f.offset) != 2 {
			return nil, apperrors.New(apperrors.CodeInvalidArgument, "--offset needs dx,dy")
		}
		opts = append(opts, ocrutil.WithOffset(f.offset[0], f.offset[1]))
	}
	if len(f.target) > 0 {
		if len(f.target) != 2 {
			return nil, apperrors.New(apperrors.CodeInvalidArgument, "--target needs x,y")
		}
		opts = append(opts, ocrutil.WithTarget(f.target[0], f.target[1]))
	}
	if f.double {
		opts = append(opts, ocrutil.WithDoubleTap())
	}
	return opts, nil
}

// withFinder opens the runtime, builds a Finder and runs fn.
func withFinder(cmd *cobra.Command, flags *lookupFlags, fn func(ctx context.Context, f *ocrutil.Finder, opts []ocrutil.Option) error) error {
	opts, err := flags.options()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	rt, err := openRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, ocrutil.New(rt.device, rt.engine), opts)
}

func newTextsCmd(flags *lookupFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "texts",
		Short: "Print every text currently on screen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withFinder(cmd, flags, func(ctx context.Context, f *ocrutil.Finder, opts []ocrutil.Option) error {
				texts, err := f.Texts(ctx, opts...)
				if err != nil {
					return err
				}
				for _, t := range texts {
					fmt.Fprintln(cmd.OutOrStdout(), t)
				}
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newTapCmd(flags *lookupFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tap TEXT [TEXT...]",
		Short: "Tap text once it appears; with several texts, pick one by --strategy",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFinder(cmd, flags, func(ctx context.Context, f *ocrutil.Finder, opts []ocrutil.Option) error {
				var err error
				if len(args) == 1 {
					_, err = f.Tap(ctx, args[0], opts...)
				} else {
					_, err = f.TapAny(ctx, args, ocrutil.Strategy(flags.strategy), opts...)
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "tapped")
				return nil
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().IntSliceVar(&flags.offset, "offset", nil, "dx,dy added to the text center")
	cmd.Flags().IntSliceVar(&flags.target, "target", nil, "x,y reference point for --strategy nearest")
	cmd.Flags().BoolVar(&flags.double, "double", false, "tap twice")
	cmd.Flags().StringVar(&flags.strategy, "strategy", string(ocrutil.StrategyConfidence), "confidence, nearest or first")
	return cmd
}

func newSwipeCmd(flags *lookupFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "swipe FROM TO",
		Short: "Swipe from one text to another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFinder(cmd, flags, func(ctx context.Context, f *ocrutil.Finder, opts []ocrutil.Option) error {
				return f.Swipe(ctx, args[0], args[1], flags.duration, opts...)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().DurationVar(&flags.duration, "duration", 500*time.Millisecond, "swipe duration")
	return cmd
}

func newWaitCmd(flags *lookupFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wait TEXT",
		Short: "Wait until text appears; exits non-zero on timeout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFinder(cmd, flags, func(ctx context.Context, f *ocrutil.Finder, opts []ocrutil.Option) error {
				ok, err := f.Wait(ctx, args[0], opts...)
				if err != nil {
					return err
				}
				if !ok {
					return apperrors.Newf(apperrors.CodeNotFound, "%q did not appear within %v", args[0], flags.timeout)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "found")
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func init() {
	rootCmd.AddCommand(
		newTextsCmd(&lookupFlags{}),
		newTapCmd(&lookupFlags{}),
		newSwipeCmd(&lookupFlags{}),
		newWaitCmd(&lookupFlags{}),
	)
}

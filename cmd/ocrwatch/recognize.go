package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/ocrwatch/internal/grpcserver"
)

var recognizeAddr string

var recognizeServerCmd = &cobra.Command{
	Use:   "recognize-server",
	Short: "Serve the configured OCR engine over gRPC",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rt, err := openEngineOnly(cfg)
		if err != nil {
			return err
		}
		defer rt.Close()

		addr := recognizeAddr
		if addr == "" {
			addr = cfg.GRPCAddr
		}
		if addr == "" {
			addr = ":50051"
		}
		return grpcserver.New(rt.engine).ListenAndServe(ctx, addr)
	},
}

func init() {
	recognizeServerCmd.Flags().StringVar(&recognizeAddr, "addr", "", "listen address (default GRPC_ADDR or :50051)")
	rootCmd.AddCommand(recognizeServerCmd)
}

/*
	Copyright (c) 2020 Docker Inc.

	Permission is hereby granted, free of charge, to any person
	obtaining a copy of this software and associated documentation
	files (the "Software"), to deal in the Software without
	restriction, including without limitation the rights to use, copy,
	modify, merge, publish, distribute, sublicense, and/or sell copies
	of the Software, and to permit persons to whom the Software is
	furnished to do so, subject to the following conditions:

	The above copyright notice and this permission notice shall be
	included in all copies or substantial portions of the Software.

	THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
	EXPRESS OR IMPLIED,
	INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
	FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
	IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT
	HOLDERS BE LIABLE FOR ANY CLAIM,
	DAMAGES OR OTHER LIABILITY,
	WHETHER IN AN ACTION OF CONTRACT,
	TORT OR OTHERWISE,
	ARISING FROM, OUT OF OR IN CONNECTION WITH
	THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
*/

package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/quic-go/quic-go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nine114/h3d/internal/applog"
	"github.com/nine114/h3d/internal/h3config"
	"github.com/nine114/h3d/internal/h3err"
	"github.com/nine114/h3d/internal/h3metrics"
	"github.com/nine114/h3d/internal/h3msg"
	"github.com/nine114/h3d/internal/quictransport"
	"github.com/nine114/h3d/internal/server"
)

type serveOpts struct {
	listen        string
	metricsListen string
	certPath      string
	keyPath       string
	workers       int
	queueSize     int
	maxConns      int
	maxRequests   int
	idleTimeout   time.Duration
	drainTimeout  time.Duration
	debug         bool
}

func main() {
	var opts serveOpts

	root := &cobra.Command{
		Use:           "h3d",
		Short:         "h3d serves HTTP/3 over QUIC",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.listen, "listen", "0.0.0.0:4433", "UDP address to accept QUIC connections on")
	flags.StringVar(&opts.metricsListen, "metrics-listen", "127.0.0.1:9090", "TCP address to serve /metrics on")
	flags.StringVar(&opts.certPath, "cert", "", "TLS certificate path (required)")
	flags.StringVar(&opts.keyPath, "key", "", "TLS private key path (required)")
	flags.IntVar(&opts.workers, "workers", 0, "worker pool size (0 uses the built-in default)")
	flags.IntVar(&opts.queueSize, "queue-size", 0, "worker queue size (0 defaults to 4x workers)")
	flags.IntVar(&opts.maxConns, "max-connections", 0, "connection admission cap (0 uses the built-in default)")
	flags.IntVar(&opts.maxRequests, "max-concurrent-requests", 0, "per-connection concurrent request cap (0 uses the built-in default)")
	flags.DurationVar(&opts.idleTimeout, "idle-timeout", 0, "QUIC idle timeout (0 uses the built-in default)")
	flags.DurationVar(&opts.drainTimeout, "drain-timeout", 30*time.Second, "how long Shutdown waits for in-flight requests to finish")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")

	if err := root.Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func runServe(ctx context.Context, opts serveOpts) error {
	if opts.debug {
		applog.Base.SetLevel(logrus.DebugLevel)
	}
	if opts.certPath == "" || opts.keyPath == "" {
		return fmt.Errorf("h3d: --cert and --key are required")
	}

	cfg := h3config.Default()
	if opts.workers > 0 {
		cfg.WorkerCount = opts.workers
	}
	if opts.queueSize > 0 {
		cfg.QueueSize = opts.queueSize
	}
	if opts.maxConns > 0 {
		cfg.MaxConnections = opts.maxConns
	}
	if opts.maxRequests > 0 {
		cfg.MaxConcurrentRequests = opts.maxRequests
	}
	if opts.idleTimeout > 0 {
		cfg.IdleTimeoutMS = int(opts.idleTimeout.Milliseconds())
	}
	cfg.CertPath = opts.certPath
	cfg.KeyPath = opts.keyPath

	applog.L(ctx).WithFields(cfg.LogFields()).Info("h3d: starting")

	cert, err := loadCertificate(opts.certPath, opts.keyPath)
	if err != nil {
		return err
	}
	tlsConf := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{cfg.ALPN},
	}
	quicConf := &quic.Config{
		MaxIdleTimeout:             time.Duration(cfg.IdleTimeoutMS) * time.Millisecond,
		HandshakeIdleTimeout:       time.Duration(cfg.HandshakeIdleTimeoutMS) * time.Millisecond,
		MaxStreamReceiveWindow:     cfg.StreamReceiveWindow,
		MaxConnectionReceiveWindow: cfg.ConnectionFlowControlWindow,
		MaxIncomingStreams:         int64(cfg.MaxConcurrentRequests),
		MaxIncomingUniStreams:      int64(cfg.MaxUnidirectionalStreams),
	}

	adapter, err := quictransport.Listen(opts.listen, tlsConf, quicConf)
	if err != nil {
		return fmt.Errorf("h3d: %w", err)
	}

	registry := prometheus.NewRegistry()
	srv := server.New(cfg, adapter, echoHandler, registry, nil)

	metricsSrv := &http.Server{
		Addr:    opts.metricsListen,
		Handler: h3metrics.Handler(registry),
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			applog.L(ctx).WithError(err).Warn("h3d: metrics server stopped")
		}
	}()

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := adapter.Serve(serveCtx); err != nil {
			applog.L(ctx).WithError(err).Error("h3d: quic listener stopped")
		}
	}()
	srv.Start(serveCtx)

	sig := server.TrapSignals()
	<-sig
	applog.L(ctx).Info("h3d: signal received, draining")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), opts.drainTimeout+5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx, opts.drainTimeout); err != nil {
		applog.L(ctx).WithError(err).Warn("h3d: shutdown completed with errors")
	}
	_ = metricsSrv.Close()
	return nil
}

// loadCertificate distinguishes a missing credential file from any other
// load failure, so operators get h3err.IsNotFound-shaped feedback for
// the common "forgot to mount the cert" case.
func loadCertificate(certPath, keyPath string) (tls.Certificate, error) {
	for _, p := range []string{certPath, keyPath} {
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				return tls.Certificate{}, errors.Wrap(h3err.ErrNotFound, "h3d: credential file not found: "+p)
			}
			return tls.Certificate{}, errors.Wrap(h3err.ErrUnknown, "h3d: failed to stat "+p+": "+err.Error())
		}
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return tls.Certificate{}, errors.Wrap(h3err.ErrUnknown, "h3d: failed to load TLS credentials: "+err.Error())
	}
	return cert, nil
}

// echoHandler is the default application callback: it reflects the
// request's method and path back as the response body, so a freshly
// built binary has something to answer with before a real application is
// wired in.
func echoHandler(ctx context.Context, req *h3msg.Request) (int, []h3msg.HeaderField, [][]byte) {
	body := []byte(fmt.Sprintf("%s %s\n", req.Method, req.Path))
	headers := []h3msg.HeaderField{{Name: "content-type", Value: "text/plain"}}
	return 200, headers, [][]byte{body}
}

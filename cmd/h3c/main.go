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
	"net"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nine114/h3d/internal/applog"
	"github.com/nine114/h3d/internal/h3client"
	"github.com/nine114/h3d/internal/quictransport"
)

type getOpts struct {
	authority      string
	path           string
	insecure       bool
	requestTimeout time.Duration
	debug          bool
}

func main() {
	var opts getOpts

	root := &cobra.Command{
		Use:           "h3c <authority> <path>",
		Short:         "h3c issues a single HTTP/3 request and prints the response",
		Args:          cobra.ExactArgs(2),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.authority = args[0]
			opts.path = args[1]
			return runGet(cmd.Context(), opts)
		},
	}

	flags := root.PersistentFlags()
	flags.BoolVar(&opts.insecure, "insecure", false, "skip TLS certificate verification")
	flags.DurationVar(&opts.requestTimeout, "timeout", 10*time.Second, "request timeout")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")

	if err := root.Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func runGet(ctx context.Context, opts getOpts) error {
	if opts.debug {
		applog.Base.SetLevel(logrus.DebugLevel)
	}

	host, _, err := net.SplitHostPort(opts.authority)
	if err != nil {
		host = opts.authority
	}

	tlsConf := &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: opts.insecure,
		NextProtos:         []string{"h3"},
	}

	dialCtx, dialCancel := context.WithTimeout(ctx, opts.requestTimeout)
	defer dialCancel()
	transport, err := quictransport.Dial(dialCtx, opts.authority, tlsConf, nil)
	if err != nil {
		return fmt.Errorf("h3c: dial failed: %w", err)
	}

	client := h3client.New(transport)

	reqCtx, reqCancel := context.WithTimeout(ctx, opts.requestTimeout)
	defer reqCancel()
	resp, err := client.Get(reqCtx, "https", opts.authority, opts.path)
	if err != nil {
		return fmt.Errorf("h3c: request failed: %w", err)
	}

	fmt.Fprintf(os.Stdout, "status: %d\n", resp.Status)
	for _, h := range resp.Headers {
		fmt.Fprintf(os.Stdout, "%s: %s\n", h.Name, h.Value)
	}
	fmt.Fprintln(os.Stdout)
	os.Stdout.Write(resp.Body)
	return nil
}

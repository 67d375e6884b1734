// Copyright (c) 2026 Tom Gelhausen and/or affiliates.
//
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at:
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command hostresolve resolves host names through the resolution engine
// from the command line, roughly like dig but with the engine's planning,
// caching and secure-DNS fallback in the path.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	dnstap "github.com/dnstap/golang-dnstap"
	"go.uber.org/zap"

	resolver "github.com/TomTonic/hostresolve"
	"github.com/TomTonic/hostresolve/dnsclient"
)

func main() {
	os.Exit(run())
}

// run exists so deferred cleanup (dnstap flush included) still happens
// before the process exits with a status code.
func run() int {
	var (
		servers   = flag.String("server", "", "comma-separated insecure DNS servers (host:port)")
		secure    = flag.String("secure-server", "", "comma-separated secure servers (DoH URL or host:port for DoT/DoQ)")
		secureNet = flag.String("secure-net", dnsclient.DOH, "secure transport: tcp-tls, doh, doh3 or doq")
		policy    = flag.String("policy", dnsclient.PolicySequential, "server selection policy: sequential or weighted-random")
		mode      = flag.String("mode", "automatic", "secure mode: off, automatic or secure")
		qtypes    = flag.String("type", "", "comma-separated query types (A, AAAA, HTTPS); empty picks the default set")
		scheme    = flag.String("scheme", "", "request scheme (http, https, ws, wss)")
		port      = flag.Uint("port", 0, "request port")
		hostsPath = flag.String("hosts", "", "HOSTS-style file consulted before DNS")
		tapFile   = flag.String("dnstap", "", "write dnstap frames of all upstream traffic to this file")
		sysFall   = flag.Bool("system-fallback", false, "fall back to the system resolver after failed DNS")
		timeout   = flag.Duration("timeout", 10*time.Second, "per-name resolution timeout")
		verbose   = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: hostresolve [flags] hostname...")
		flag.PrintDefaults()
		return 2
	}

	logger := newLogger(*verbose)
	defer logger.Sync() //nolint:errcheck
	resolver.SetLogger(logger)

	cfg := dnsclient.Config{Policy: *policy}
	for _, addr := range splitList(*servers) {
		cfg.InsecureServers = append(cfg.InsecureServers, dnsclient.Server{Addr: addr})
	}
	for _, addr := range splitList(*secure) {
		cfg.SecureServers = append(cfg.SecureServers,
			dnsclient.Server{Addr: addr, Net: *secureNet})
	}

	if *tapFile != "" {
		out, err := dnstap.NewFrameStreamOutputFromFilename(*tapFile)
		if err != nil {
			logger.Error("opening dnstap output", zap.Error(err))
			return 1
		}
		go out.RunOutputLoop()
		defer out.Close()
		cfg.Tap = dnsclient.NewTapper(out)
	}

	factory, err := dnsclient.NewFactory(cfg)
	if err != nil {
		logger.Error("building transaction factory", zap.Error(err))
		return 1
	}
	defer factory.Close() //nolint:errcheck

	secureMode, err := parseMode(*mode)
	if err != nil {
		logger.Error("parsing mode", zap.Error(err))
		return 1
	}
	types, err := parseTypes(*qtypes)
	if err != nil {
		logger.Error("parsing types", zap.Error(err))
		return 1
	}

	r, err := resolver.NewResolver(resolver.Options{
		Transactions:         factory,
		SecureTransactions:   factory.HasSecureServers(),
		InsecureTransactions: factory.HasInsecureServers(),
		SystemFallback:       *sysFall,
		HostsPath:            *hostsPath,
	})
	if err != nil {
		logger.Error("building resolver", zap.Error(err))
		return 1
	}
	defer r.Close()

	exit := 0
	for _, name := range flag.Args() {
		if err := resolveOne(r, name, resolver.Host{
			Scheme:   *scheme,
			Hostname: name,
			Port:     uint16(*port),
		}, resolver.ResolveParams{
			QueryTypes: types,
			SecureMode: secureMode,
		}, *timeout); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
			exit = 1
		}
	}
	logger.Debug(r.MetricsSummary())
	return exit
}

func resolveOne(r *resolver.Resolver, name string, host resolver.Host,
	params resolver.ResolveParams, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	result, err := r.Resolve(ctx, host, params)
	if err != nil {
		return err
	}

	fmt.Printf(";; %s (%s, ttl %s, %s)\n",
		name, result.Source, result.TTL, time.Since(start).Round(time.Millisecond))
	for _, ep := range result.Endpoints {
		fmt.Printf("%s\n", ep.Addr)
	}
	for _, alias := range result.Aliases {
		fmt.Printf(";; alias: %s\n", alias)
	}
	for _, md := range result.Metadata {
		fmt.Printf(";; svc %d %s alpn=%s port=%d\n",
			md.Priority, md.TargetName, strings.Join(md.ALPNs, ","), md.Port)
	}
	return nil
}

func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return logger
}

func parseMode(s string) (resolver.SecureMode, error) {
	switch s {
	case "off":
		return resolver.SecureModeOff, nil
	case "automatic":
		return resolver.SecureModeAutomatic, nil
	case "secure":
		return resolver.SecureModeSecure, nil
	}
	return 0, fmt.Errorf("unknown secure mode %q", s)
}

func parseTypes(s string) (resolver.QueryTypeSet, error) {
	var types []resolver.QueryType
	for _, part := range splitList(s) {
		switch strings.ToUpper(part) {
		case "A":
			types = append(types, resolver.QueryTypeA)
		case "AAAA":
			types = append(types, resolver.QueryTypeAAAA)
		case "HTTPS":
			types = append(types, resolver.QueryTypeHTTPS)
		case "PTR":
			types = append(types, resolver.QueryTypePTR)
		case "TXT":
			types = append(types, resolver.QueryTypeTXT)
		default:
			return 0, fmt.Errorf("unknown query type %q", part)
		}
	}
	return resolver.NewQueryTypeSet(types...), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

/*
Copyright 2025 The Weft Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/weft-dev/weft/pkg/async"
	"github.com/weft-dev/weft/pkg/config"
	"github.com/weft-dev/weft/pkg/pool"
	"github.com/weft-dev/weft/pkg/virtualnet"
	"github.com/weft-dev/weft/pkg/virtualnet/client"
)

var setupLog logr.Logger

func main() {
	var configFile string
	var maxConnections int
	var maxTTL time.Duration
	var blockingClients int
	var coopClients int
	var metricsAddr string

	flag.StringVar(&configFile, "config", "", "Path to a YAML configuration file.")
	flag.IntVar(&maxConnections, "max-connections", 0, "Pool connection ceiling (overrides config).")
	flag.DurationVar(&maxTTL, "max-ttl", 0, "Idle connection TTL (overrides config).")
	flag.IntVar(&blockingClients, "blocking-clients", 100, "Number of blocking demo clients.")
	flag.IntVar(&coopClients, "coop-clients", 100, "Number of cooperative demo clients.")
	flag.StringVar(&metricsAddr, "metrics-bind-address", ":8080", "The address the metric endpoint binds to.")
	flag.Parse()

	zapLog, err := zap.NewDevelopment()
	if err != nil {
		os.Exit(1)
	}
	setupLog = zapr.NewLogger(zapLog).WithName("setup")

	cfg := config.NewDefaultConfig()
	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			setupLog.Error(err, "unable to load configuration", "path", configFile)
			os.Exit(1)
		}
	}
	if maxConnections > 0 {
		cfg.Pool.MaxConnections = maxConnections
	}
	if maxTTL > 0 {
		cfg.Pool.MaxTTL = config.Duration(maxTTL)
	}
	if err := cfg.Validate(); err != nil {
		setupLog.Error(err, "invalid configuration")
		os.Exit(1)
	}

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			setupLog.Error(err, "metrics endpoint failed")
		}
	}()

	iface := virtualnet.ObtainInterface("demo")
	defer virtualnet.DropInterface("demo")
	go echoServer(iface, setupLog.WithName("echo"))

	p, err := pool.New(client.New(iface), pool.Config{
		MaxConnections: cfg.Pool.MaxConnections,
		MaxTTL:         cfg.Pool.MaxTTL.Std(),
		ReapInterval:   cfg.Pool.ReapInterval.Std(),
		Name:           "demo",
		Logger:         zapr.NewLogger(zapLog),
	})
	if err != nil {
		setupLog.Error(err, "unable to create pool")
		os.Exit(1)
	}

	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < blockingClients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runBlockingClient(p); err != nil {
				setupLog.Error(err, "blocking client failed")
			}
		}()
	}

	exec := async.NewExecutor(1)
	for i := 0; i < coopClients; i++ {
		if err := exec.Run(context.Background(), newClientCoroutine(p)); err != nil {
			setupLog.Error(err, "unable to start cooperative client")
		}
	}

	wg.Wait()
	exec.WaitTasksFinished()

	stats := p.Stats()
	setupLog.Info("demo finished",
		"elapsed", time.Since(start).String(),
		"created", stats.Created,
		"invalidated", stats.Invalidated,
		"live", stats.Live,
		"idle", stats.Idle,
	)

	if err := p.Close(); err != nil {
		setupLog.Error(err, "pool close failed")
	}
	exec.Stop()
}

// echoServer accepts connections on the virtual interface and echoes every
// byte back until the peer closes.
func echoServer(iface *virtualnet.Interface, log logr.Logger) {
	for {
		sock, err := iface.Accept()
		if err != nil {
			if !errors.Is(err, virtualnet.ErrInterfaceClosed) {
				log.Error(err, "accept failed")
			}
			return
		}
		go func(s *virtualnet.Socket) {
			defer s.Close()
			buf := make([]byte, 4096)
			for {
				n, err := s.Read(buf)
				if err != nil {
					return
				}
				if _, err := s.Write(buf[:n]); err != nil {
					return
				}
			}
		}(sock)
	}
}

func runBlockingClient(p *pool.Pool) error {
	conn, err := p.Acquire()
	if err != nil {
		return err
	}
	defer func() { _ = conn.Release() }()

	msg := []byte("ping")
	if _, err := conn.Write(msg); err != nil {
		return err
	}
	reply := make([]byte, len(msg))
	if _, err := io.ReadFull(conn, reply); err != nil {
		return err
	}
	time.Sleep(10 * time.Millisecond)
	return nil
}

// newClientCoroutine mirrors runBlockingClient as a cooperative task:
// acquire, echo once, linger, release.
func newClientCoroutine(p *pool.Pool) *async.Coroutine {
	const (
		stateAcquire async.State = "acquire"
		stateUse     async.State = "use"
		stateLinger  async.State = "linger"
		stateRelease async.State = "release"
	)

	var acq *pool.Acquisition
	var conn *pool.Conn

	co := async.NewCoroutine(stateAcquire)
	co.Handle(stateAcquire, func(ctx context.Context) async.Action {
		acq = p.AcquireAsync()
		return async.AwaitChan(acq.Done(), stateUse)
	})
	co.Handle(stateUse, func(ctx context.Context) async.Action {
		var err error
		conn, err = acq.Result()
		if err != nil {
			return async.Abort(err)
		}
		if _, err := conn.Write([]byte("ping")); err != nil {
			conn.Invalidate()
			return async.Yield(stateRelease)
		}
		reply := make([]byte, 4)
		if _, err := io.ReadFull(conn, reply); err != nil {
			conn.Invalidate()
			return async.Yield(stateRelease)
		}
		return async.Wait(10*time.Millisecond, stateLinger)
	})
	co.Handle(stateLinger, func(ctx context.Context) async.Action {
		return async.Yield(stateRelease)
	})
	co.Handle(stateRelease, func(ctx context.Context) async.Action {
		if err := conn.Release(); err != nil {
			return async.Abort(err)
		}
		return async.Finish()
	})
	return co
}

// Команда loadtest нагружает gRPC API продаж параллельными сценариями
// и проверяет, что сервис не выдаёт один номер продажи дважды.
package main

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	grpcsvc "github.com/vladislavdragonenkov/sales/internal/service/grpc"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run возвращает код выхода: 1 при ошибках сценариев или повторных номерах.
func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseOptions(args, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "invalid config: %v\n", err)
		return 2
	}

	clients, closeAll, err := dial(opts)
	if err != nil {
		fmt.Fprintf(stderr, "failed to create grpc client connection: %v\n", err)
		return 1
	}
	defer closeAll()

	started := time.Now()
	rec := newRecorder()
	failed := execute(opts, clients, rec, fmt.Sprintf("%d-%d", started.UnixNano(), os.Getpid()))

	rep := rec.summarize(started, time.Since(started))
	if rep.FailedScenarios == 0 && failed > 0 {
		rep.FailedScenarios = failed
		rep.ErrorRate = share(failed, rep.TotalScenarios)
	}

	printReport(stdout, rep, opts)
	if opts.reportPath != "" {
		if err := saveReport(opts.reportPath, rep); err != nil {
			fmt.Fprintf(stderr, "failed to write report: %v\n", err)
			return 1
		}
	}

	if rep.FailedScenarios > 0 || rep.DuplicateNumbers > 0 {
		return 1
	}
	return 0
}

func dial(opts options) ([]salesClient, func(), error) {
	conns := make([]*grpc.ClientConn, 0, opts.conns)
	closeAll := func() {
		for _, c := range conns {
			_ = c.Close()
		}
	}

	clients := make([]salesClient, 0, opts.conns)
	for range opts.conns {
		conn, err := grpc.NewClient(opts.target, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		conns = append(conns, conn)
		clients = append(clients, grpcsvc.NewSalesClient(conn))
	}
	return clients, closeAll, nil
}

// execute держит в полёте не больше opts.workers сценариев и возвращает число упавших.
func execute(opts options, clients []salesClient, rec *recorder, runID string) int64 {
	var deadline time.Time
	if opts.runFor > 0 {
		deadline = time.Now().Add(opts.runFor)
	}

	var (
		g      errgroup.Group
		failed atomic.Int64
	)
	g.SetLimit(opts.workers)
	for i := 0; opts.more(i, deadline); i++ {
		r := runner{client: clients[i%len(clients)], opts: opts, runID: runID, rec: rec}
		g.Go(func() error {
			if err := r.run(i); err != nil {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return failed.Load()
}

// Package flightsource pulls activation snapshots from a running engine's
// Arrow Flight endpoint, so the probe can inspect an engine without a file
// handoff. The engine serves one snapshot per ticket; the stream schema and
// row layout are the actstore wire format.
package flightsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/clocksmith/doppler/internal/actstore"
	"github.com/clocksmith/doppler/internal/logger"
	"github.com/clocksmith/doppler/internal/metrics"
)

// DefaultTicket is the ticket engines serve their latest capture under.
const DefaultTicket = "activations"

// Scheme prefixes a Flight endpoint in a snapshot reference.
const Scheme = "flight://"

// Open resolves a snapshot reference: a flight://host:port endpoint is
// fetched over Flight, anything else is read as a snapshot file.
func Open(ctx context.Context, ref string) (*actstore.Snapshot, error) {
	if addr, ok := strings.CutPrefix(ref, Scheme); ok {
		return Fetch(ctx, addr)
	}
	return actstore.Load(ref)
}

// RecordStream is the part of a Flight record reader the decoder consumes.
// Tests feed in-memory streams through it.
type RecordStream interface {
	Schema() *arrow.Schema
	Next() bool
	Record() arrow.Record
	Err() error
}

// Fetch pulls the default snapshot from addr.
func Fetch(ctx context.Context, addr string) (*actstore.Snapshot, error) {
	return FetchTicket(ctx, addr, DefaultTicket)
}

// FetchTicket pulls one snapshot identified by ticket from addr.
func FetchTicket(ctx context.Context, addr, ticket string) (*actstore.Snapshot, error) {
	start := time.Now()
	snap, err := fetch(ctx, addr, ticket)
	metrics.RecordFlightFetch(time.Since(start), err)
	if err == nil {
		logger.Log.Info("snapshot fetched",
			"addr", addr,
			"ticket", ticket,
			"tensors", snap.TensorCount(),
			"duration", time.Since(start))
	}
	return snap, err
}

func fetch(ctx context.Context, addr, ticket string) (*actstore.Snapshot, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	defer conn.Close()

	client := flight.NewClientFromConn(conn, nil)

	stream, err := client.DoGet(ctx, &flight.Ticket{Ticket: []byte(ticket)})
	if err != nil {
		return nil, fmt.Errorf("doget %q from %s: %w", ticket, addr, err)
	}

	reader, err := flight.NewRecordReader(stream)
	if err != nil {
		return nil, fmt.Errorf("failed to open record stream: %w", err)
	}
	defer reader.Release()

	return ReadSnapshot(reader)
}

// ReadSnapshot drains a record stream into a snapshot.
func ReadSnapshot(r RecordStream) (*actstore.Snapshot, error) {
	dec, err := actstore.NewRecordDecoder(r.Schema())
	if err != nil {
		return nil, err
	}

	for r.Next() {
		if err := dec.Append(r.Record()); err != nil {
			return nil, err
		}
	}
	if err := r.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("record stream: %w", err)
	}

	return dec.Finish()
}

package broker

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"syscall"

	"github.com/segmentio/kafka-go"
)

// Broker conditions that adapters report explicitly.
var (
	// ErrEndOfPartition marks that the consumer caught up with a partition. It is not a failure.
	ErrEndOfPartition = errors.New("end of partition")
	// ErrUnknownTopic is reported while the topic has not been created yet.
	ErrUnknownTopic = errors.New("unknown topic or partition")
	// ErrBrokerUnreachable is reported when no broker could be contacted.
	ErrBrokerUnreachable = errors.New("broker unreachable")
)

// ErrorClass tells the consumer loop how to react to a poll error.
type ErrorClass int

const (
	ClassNone ErrorClass = iota
	ClassEndOfPartition
	ClassBootstrap
	ClassTransient
	ClassFatal
)

func (c ErrorClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassEndOfPartition:
		return "end_of_partition"
	case ClassBootstrap:
		return "bootstrap"
	case ClassTransient:
		return "transient"
	default:
		return "fatal"
	}
}

// Classify maps a broker error onto the consumer error taxonomy.
// Anything not known to be recoverable is fatal.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}

	if errors.Is(err, ErrEndOfPartition) {
		return ClassEndOfPartition
	}

	if errors.Is(err, ErrUnknownTopic) ||
		errors.Is(err, kafka.UnknownTopicOrPartition) ||
		errors.Is(err, kafka.LeaderNotAvailable) {
		return ClassBootstrap
	}

	if errors.Is(err, ErrBrokerUnreachable) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}

	// A group rebalance revokes partitions mid-flight; the next commit or fetch runs under
	// the new generation.
	if isRebalance(err) {
		return ClassTransient
	}

	var kerr kafka.Error
	if errors.As(err, &kerr) {
		// kafka.Error also satisfies net.Error, so it must be decided here.
		if kerr.Temporary() {
			return ClassTransient
		}
		return ClassFatal
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		return ClassTransient
	}

	return ClassFatal
}

func isRebalance(err error) bool {
	return errors.Is(err, kafka.RebalanceInProgress) ||
		errors.Is(err, kafka.IllegalGeneration) ||
		errors.Is(err, kafka.UnknownMemberId)
}

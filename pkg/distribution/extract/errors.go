package extract

import (
	"errors"
	"fmt"
)

var (
	// ErrShardRead marks a shard that could not be fetched, opened or parsed.
	// It is fatal for the run.
	ErrShardRead = errors.New("shard read failure")
	// ErrIO marks a failure to create the output directory or files.
	ErrIO = errors.New("output I/O failure")
)

// ShardError reports a fatal failure on one shard file.
type ShardError struct {
	Shard string
	Err   error
}

func (e *ShardError) Error() string {
	return fmt.Sprintf("%s %s: %v", ErrShardRead, e.Shard, e.Err)
}

// Unwrap exposes both ErrShardRead and the underlying cause to errors.Is/As.
func (e *ShardError) Unwrap() []error {
	return []error{ErrShardRead, e.Err}
}

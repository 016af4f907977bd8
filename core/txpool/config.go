// Copyright 2025 The corvid Authors
// This file is part of the corvid library.
//
// The corvid library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The corvid library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the corvid library. If not, see <http://www.gnu.org/licenses/>.

package txpool

import (
	"github.com/corvidchain/corvid/log"
)

// Config are the configuration parameters of the transaction pool.
type Config struct {
	MaxReady       uint64 // Maximum number of ready transactions
	MaxReadyBytes  uint64 // Maximum cumulative payload size of ready transactions
	MaxFuture      uint64 // Maximum number of future transactions
	MaxFutureBytes uint64 // Maximum cumulative payload size of future transactions

	// FinalityHorizon is the number of finalized blocks to wait for a block
	// containing a watched transaction to be finalized before the watch is
	// timed out.
	FinalityHorizon uint64

	// WatchBuffer is the per-watch status channel depth. When a slow watcher
	// falls this many events behind, the oldest buffered non-terminal event
	// is discarded.
	WatchBuffer int
}

// DefaultConfig contains the default configurations for the transaction pool.
var DefaultConfig = Config{
	MaxReady:       8192,
	MaxReadyBytes:  20 * 1024 * 1024,
	MaxFuture:      512,
	MaxFutureBytes: 1 * 1024 * 1024,

	FinalityHorizon: 512,
	WatchBuffer:     64,
}

// sanitize checks the provided user configurations and changes anything that's
// unreasonable or unworkable.
func (config *Config) sanitize() Config {
	conf := *config
	if conf.MaxReady == 0 {
		log.Warn("Sanitizing invalid txpool ready limit", "provided", conf.MaxReady, "updated", DefaultConfig.MaxReady)
		conf.MaxReady = DefaultConfig.MaxReady
	}
	if conf.MaxReadyBytes == 0 {
		log.Warn("Sanitizing invalid txpool ready byte limit", "provided", conf.MaxReadyBytes, "updated", DefaultConfig.MaxReadyBytes)
		conf.MaxReadyBytes = DefaultConfig.MaxReadyBytes
	}
	if conf.MaxFuture == 0 {
		log.Warn("Sanitizing invalid txpool future limit", "provided", conf.MaxFuture, "updated", DefaultConfig.MaxFuture)
		conf.MaxFuture = DefaultConfig.MaxFuture
	}
	if conf.MaxFutureBytes == 0 {
		log.Warn("Sanitizing invalid txpool future byte limit", "provided", conf.MaxFutureBytes, "updated", DefaultConfig.MaxFutureBytes)
		conf.MaxFutureBytes = DefaultConfig.MaxFutureBytes
	}
	if conf.FinalityHorizon == 0 {
		log.Warn("Sanitizing invalid txpool finality horizon", "provided", conf.FinalityHorizon, "updated", DefaultConfig.FinalityHorizon)
		conf.FinalityHorizon = DefaultConfig.FinalityHorizon
	}
	if conf.WatchBuffer < 1 {
		log.Warn("Sanitizing invalid txpool watch buffer", "provided", conf.WatchBuffer, "updated", DefaultConfig.WatchBuffer)
		conf.WatchBuffer = DefaultConfig.WatchBuffer
	}
	return conf
}

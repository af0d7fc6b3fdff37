package config

import (
	"github.com/marmos91/dittosmb/pkg/smb/client"
	"github.com/marmos91/dittosmb/pkg/smb/transport"
)

// ClientConfig returns the session tunables described by the engine section.
func (c *Config) ClientConfig() client.Config {
	e := c.Engine
	return client.Config{
		RequestTimeout:      e.RequestTimeout,
		MaxReplays:          e.MaxReplays,
		CloseTimeout:        e.CloseTimeout,
		MaxReadSize:         e.MaxReadSize.Uint32(),
		MaxWriteSize:        e.MaxWriteSize.Uint32(),
		DirectoryLeases:     e.DirectoryLeases,
		DurableHandles:      e.DurableHandles,
		DurableTimeout:      e.DurableTimeout,
		SecondaryStream:     e.SecondaryStream,
		SecondaryStreamSize: e.SecondaryStreamSize.Uint32(),
		AsyncDepth:          e.AsyncDepth,
		CreditLowWater:      e.CreditLowWater,
	}
}

// DialConfig returns the transport settings of the client commands.
func (c *Config) DialConfig() transport.Config {
	t := c.Transport
	return transport.Config{
		Address:        t.Address,
		DialTimeout:    t.DialTimeout,
		RequestTimeout: c.Engine.RequestTimeout,
		InitialCredits: t.InitialCredits,
		SessionID:      t.SessionID,
		TreeID:         t.TreeID,
		Reconnect:      t.Reconnect,
	}
}

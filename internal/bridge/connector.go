package bridge

import (
	"context"

	"github.com/bnema/segbridge/internal/shmif"
)

// ShmifConnector opens segments over the shared-memory transport.
type ShmifConnector struct {
	Path string
	conn *shmif.Conn
}

// NewShmifConnector returns a connector for the compositor socket at path.
func NewShmifConnector(path string) *ShmifConnector {
	return &ShmifConnector{Path: path}
}

func (c *ShmifConnector) OpenPrimary(ctx context.Context) (Transport, shmif.Args, error) {
	conn, seg, err := shmif.Connect(ctx, c.Path, shmif.KindVM)
	if err != nil {
		return nil, nil, err
	}
	c.conn = conn
	return seg, conn.Args(), nil
}

func (c *ShmifConnector) AcquireSubsegment(ctx context.Context) (Transport, error) {
	if c.conn == nil {
		return nil, shmif.ErrClosed
	}
	seg, err := c.conn.Acquire(ctx, shmif.KindVM)
	if err != nil {
		return nil, err
	}
	return seg, nil
}

func (c *ShmifConnector) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// TransactionArchiver stores fetched raw transactions in cold storage so a
// wallet's history can be replayed without hitting the RPC again.
type TransactionArchiver interface {
	ArchiveTransactions(ctx context.Context, wallet string, txs []RawTransaction, at time.Time) (string, error)
}

// BlobReader reads objects back from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// TransactionArchive is a TransactionArchiver that can also replay what it
// stored.
type TransactionArchive interface {
	TransactionArchiver
	LoadTransactions(ctx context.Context, wallet string) ([]RawTransaction, error)
}

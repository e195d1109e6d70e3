package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/walletledger/internal/domain"
)

const jsonlContentType = "application/x-ndjson"

// multipartThreshold is the payload size above which archives are streamed
// through the multipart uploader.
const multipartThreshold = 8 * 1024 * 1024

// TxArchive stores each sync's raw transactions as one JSONL object and reads
// them back for replay.
//
// Key schema:
//
//	raw/{wallet}/{YYYY-MM-DD}/{unix-nano}-{uuid}.jsonl
type TxArchive struct {
	writer domain.BlobWriter
	reader domain.BlobReader
}

// NewTxArchive creates a TxArchive. reader may be nil when replay is not
// needed.
func NewTxArchive(writer domain.BlobWriter, reader domain.BlobReader) *TxArchive {
	return &TxArchive{writer: writer, reader: reader}
}

// ArchiveTransactions uploads txs and returns the object key. Nothing is
// written for an empty slice.
func (a *TxArchive) ArchiveTransactions(ctx context.Context, wallet string, txs []domain.RawTransaction, at time.Time) (string, error) {
	if len(txs) == 0 {
		return "", nil
	}

	buf, err := marshalJSONL(txs)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive %s: %w", wallet, err)
	}

	path := archivePath(wallet, at)
	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: archive %s: %w", wallet, err)
	}
	return path, nil
}

// LoadTransactions reads every archived transaction of wallet, oldest object
// first. A signature archived more than once is returned once.
func (a *TxArchive) LoadTransactions(ctx context.Context, wallet string) ([]domain.RawTransaction, error) {
	if a.reader == nil {
		return nil, fmt.Errorf("s3blob: load %s: archive is write-only", wallet)
	}

	keys, err := a.reader.List(ctx, walletPrefix(wallet))
	if err != nil {
		return nil, fmt.Errorf("s3blob: load %s: %w", wallet, err)
	}

	seen := make(map[string]struct{})
	var out []domain.RawTransaction
	for _, key := range keys {
		txs, err := a.readObject(ctx, key)
		if err != nil {
			return nil, err
		}
		for _, tx := range txs {
			if _, dup := seen[tx.Signature]; dup {
				continue
			}
			seen[tx.Signature] = struct{}{}
			out = append(out, tx)
		}
	}
	return out, nil
}

func (a *TxArchive) readObject(ctx context.Context, key string) ([]domain.RawTransaction, error) {
	body, err := a.reader.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	txs, err := unmarshalJSONL(bufio.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("s3blob: read %s: %w", key, err)
	}
	return txs, nil
}

func walletPrefix(wallet string) string {
	return "raw/" + wallet + "/"
}

// archivePath sorts lexically in upload order within a wallet.
func archivePath(wallet string, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("%s%s/%019d-%s.jsonl", walletPrefix(wallet), at.Format("2006-01-02"), at.UnixNano(), uuid.NewString())
}

func marshalJSONL(txs []domain.RawTransaction) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, tx := range txs {
		if err := enc.Encode(tx); err != nil {
			return nil, fmt.Errorf("marshal line %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

func unmarshalJSONL(r *bufio.Reader) ([]domain.RawTransaction, error) {
	var txs []domain.RawTransaction
	dec := json.NewDecoder(r)
	for dec.More() {
		var tx domain.RawTransaction
		if err := dec.Decode(&tx); err != nil {
			return nil, fmt.Errorf("line %d: %w", len(txs)+1, err)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

var _ domain.TransactionArchive = (*TxArchive)(nil)

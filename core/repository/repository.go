package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
	ds "github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
	dslvl "github.com/ipfs/go-ds-leveldb"
	"github.com/velum/chaind/core/model"
)

var ErrTransactionNotFound = errors.New("transaction not found")

const txPrefix = "/tx/"

// Repository stores chain transactions in a LevelDB datastore, keyed by the
// base58 form of their signature with JSON-encoded records.
type Repository struct {
	Transactions *dslvl.Datastore
}

func Open(path string) (*Repository, error) {
	store, err := dslvl.NewDatastore(fmt.Sprintf("%s/transactions", path), nil)
	if err != nil {
		return nil, err
	}

	return &Repository{
		Transactions: store,
	}, nil
}

func (r *Repository) Close() error {
	return r.Transactions.Close()
}

func (r *Repository) PutTransaction(ctx context.Context, tx *model.TransactionData) error {
	b, err := json.Marshal(tx)
	if err != nil {
		return err
	}

	k := ds.NewKey(txPrefix + base58.Encode(tx.Signature))
	return r.Transactions.Put(ctx, k, b)
}

// TransactionBySignature loads one transaction. Returns
// ErrTransactionNotFound when the signature is unknown.
func (r *Repository) TransactionBySignature(ctx context.Context, signature []byte) (*model.TransactionData, error) {
	k := ds.NewKey(txPrefix + base58.Encode(signature))
	b, err := r.Transactions.Get(ctx, k)
	if err != nil {
		if errors.Is(err, ds.ErrNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}

	var tx model.TransactionData
	err = json.Unmarshal(b, &tx)
	if err != nil {
		return nil, err
	}

	return &tx, nil
}

// ArbitraryTransactionSignatures lists the signatures of all arbitrary-type
// transactions, confirmed or not.
func (r *Repository) ArbitraryTransactionSignatures(ctx context.Context) ([][]byte, error) {
	q := dsq.Query{Prefix: txPrefix}

	res, err := r.Transactions.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	signatures := make([][]byte, 0)
	for {
		rec, hasNext := res.NextSync()
		if !hasNext {
			break
		}
		if rec.Error != nil {
			return signatures, rec.Error
		}

		var tx model.TransactionData
		if err := json.Unmarshal(rec.Value, &tx); err != nil {
			return signatures, err
		}
		if tx.Type != model.TxArbitrary {
			continue
		}
		signatures = append(signatures, tx.Signature)
	}

	return signatures, nil
}

package main

import (
	"crypto/rand"
	"fmt"
	"os"

	"github.com/btcsuite/btcutil/base58"
	"github.com/urfave/cli/v2"

	"github.com/velum/chaind/core/blobstore"
	"github.com/velum/chaind/core/model"
	"github.com/velum/chaind/core/repository"
	"github.com/velum/chaind/core/settings"
)

var addCmd = &cli.Command{
	Name:  "add",
	Usage: "Record a local file as an arbitrary transaction",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "file",
			Required: true,
			Usage:    "Path to the payload file",
		},
		&cli.IntFlag{
			Name:  "chunk-size",
			Value: 512 * 1024,
			Usage: "Chunk size in bytes",
		},
	},
	Action: func(ctx *cli.Context) error {
		filePath := ctx.String("file")
		chunkSize := ctx.Int("chunk-size")

		cfg, err := settings.GetConfig()
		if err != nil {
			return err
		}

		repo, err := repository.Open(cfg.Repository.Path)
		if err != nil {
			return err
		}
		defer repo.Close()

		blobs, err := blobstore.NewStore(cfg.Blobs.Path)
		if err != nil {
			return err
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return err
		}

		blob, err := blobs.PutBlob(content, chunkSize)
		if err != nil {
			return err
		}

		signature := make([]byte, model.SignatureLength)
		if _, err := rand.Read(signature); err != nil {
			return err
		}

		var chunkHashes []byte
		for _, chunk := range blob.Chunks() {
			chunkHashes = append(chunkHashes, chunk.Hash()...)
		}

		tx := &model.TransactionData{
			Signature:   signature,
			Type:        model.TxArbitrary,
			Data:        blob.Hash(),
			ChunkHashes: chunkHashes,
		}
		if err := repo.PutTransaction(ctx.Context, tx); err != nil {
			return err
		}

		fmt.Println("signature:", base58.Encode(signature))
		fmt.Println("data hash:", blob.Hash58())
		fmt.Println("chunks:   ", len(blob.Chunks()))
		return nil
	},
}

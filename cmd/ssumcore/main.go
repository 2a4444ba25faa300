// This file carries forward the teacher's cmd/<binary>/main.go shape
// (cmd/kcn/main.go): a urfave/cli app with a module logger and a
// handful of subcommands, rather than a bare flag.Parse driver.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"github.com/ssum-chain/core/builder"
	"github.com/ssum-chain/core/commitment"
	"github.com/ssum-chain/core/consenserr"
	"github.com/ssum-chain/core/crypto"
	"github.com/ssum-chain/core/engine"
	"github.com/ssum-chain/core/forkchoice"
	"github.com/ssum-chain/core/genesis"
	"github.com/ssum-chain/core/internal/log"
	"github.com/ssum-chain/core/mempool"
	"github.com/ssum-chain/core/params"
	"github.com/ssum-chain/core/storage"
	"github.com/ssum-chain/core/storage/badgerstore"
	"github.com/ssum-chain/core/subsetsum"
	"github.com/ssum-chain/core/validation"
)

var logger = log.NewModuleLogger("cmd")

// Exit codes per spec §6.
const (
	exitOK                  = 0
	exitConfigError         = 2
	exitStorageError        = 3
	exitConsensusDivergence = 4
)

var (
	genesisFlag = cli.StringFlag{Name: "genesis", Value: "genesis.json", Usage: "path to genesis configuration"}
	dataDirFlag = cli.StringFlag{Name: "datadir", Value: "", Usage: "badger data directory; empty runs against an in-memory store"}
)

func main() {
	app := cli.NewApp()
	app.Name = "ssumcore"
	app.Usage = "drive the subset-sum consensus core"
	app.Version = "0.1.0"
	app.Commands = []cli.Command{
		initCommand,
		runCommand,
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	switch {
	case consenserr.Is(err, consenserr.ConfigError):
		return exitConfigError
	case consenserr.Is(err, consenserr.StorageError):
		return exitStorageError
	case consenserr.Is(err, consenserr.InvalidStateTransition):
		return exitConsensusDivergence
	default:
		return 1
	}
}

var initCommand = cli.Command{
	Name:  "init",
	Usage: "write a default genesis configuration",
	Flags: []cli.Flag{genesisFlag},
	Action: func(c *cli.Context) error {
		_, addr, err := crypto.GenerateKey()
		if err != nil {
			return consenserr.Wrap(consenserr.ConfigError, "generating genesis validator key", err)
		}
		cfg := &genesis.Config{
			ChainID:          "ssum-devnet-1",
			Timestamp:        1700000000,
			DifficultyTarget: 20,
			Alloc:            map[string]uint64{hex.EncodeToString(addr.Bytes()): 1_000_000_000},
			OffchainCID:      "bafy-genesis-placeholder",
		}
		if err := cfg.Save(c.String("genesis")); err != nil {
			return err
		}
		fmt.Printf("wrote genesis config to %s (validator %s)\n", c.String("genesis"), hex.EncodeToString(addr.Bytes()))
		return nil
	},
}

var runCommand = cli.Command{
	Name:  "run",
	Usage: "open storage, build the genesis block, and drive open-mode block production",
	Flags: []cli.Flag{genesisFlag, dataDirFlag},
	Action: func(c *cli.Context) error {
		cfg, err := genesis.Load(c.String("genesis"))
		if err != nil {
			return err
		}

		state, closeState, err := openStorage(c.String("datadir"))
		if err != nil {
			return err
		}
		defer closeState()

		if err := cfg.Apply(state); err != nil {
			return err
		}
		genesisBlock, err := cfg.Build(state)
		if err != nil {
			return err
		}

		validatorAddrs, err := cfg.ValidatorAddresses()
		if err != nil {
			return err
		}
		mode := validation.OpenMode
		if len(validatorAddrs) > 0 {
			mode = validation.AuthorityMode
		}
		validator := validation.New(mode, validatorAddrs)

		fc, err := forkchoice.New(validator, state, genesisBlock, func(ev forkchoice.ReorgEvent) {
			logger.Info("reorg", "old", ev.OldTip.Bytes(), "new", ev.NewTip.Bytes(), "depth", ev.Depth)
		})
		if err != nil {
			return consenserr.Wrap(consenserr.ConfigError, "constructing fork choice from genesis", err)
		}

		eng, err := engine.New(engine.Config{
			State:      state,
			Mempool:    mempool.NewInMemory(),
			Validator:  validator,
			ForkChoice: fc,
			BlockTime:  params.DefaultBlockTime,
		})
		if err != nil {
			return err
		}

		producerKey, producerAddr, err := crypto.GenerateKey()
		if err != nil {
			return consenserr.Wrap(consenserr.ConfigError, "generating producer key", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigc
			logger.Info("shutting down")
			cancel()
		}()

		logger.Info("producing blocks", "producer", producerAddr.Bytes(), "block_time", params.DefaultBlockTime)
		eng.RunProducer(ctx, producerAddr, producerKey, func(height uint64) (builder.MiningResult, error) {
			return prepareMining(eng, producerAddr, height, cfg.OffchainCID)
		})
		return nil
	},
}

func openStorage(dataDir string) (storage.Storage, func(), error) {
	if dataDir == "" {
		return storage.NewInMemory(), func() {}, nil
	}
	store, err := badgerstore.Open(dataDir)
	if err != nil {
		return nil, nil, consenserr.Wrap(consenserr.StorageError, "opening badger store", err)
	}
	return store, store.Close, nil
}

// prepareMining solves the next epoch's subset-sum problem against the
// current canonical tip and packages it as a builder.MiningResult,
// standing in for a real miner's search process (out of scope for the
// consensus core itself, per §4.4's "this spec only verifies" framing).
func prepareMining(eng *engine.ConsensusEngine, producer crypto.Address, height uint64, offchainCID string) (builder.MiningResult, error) {
	tip := eng.CanonicalTip()
	commitEpoch := height
	const tier = 1
	const difficultyTarget = 20

	problem, err := subsetsum.DeriveProblem(tip.Block.Hash(), commitEpoch, producer, 0, tier)
	if err != nil {
		return builder.MiningResult{}, err
	}
	witness, ok := solve(problem)
	if !ok {
		return builder.MiningResult{}, consenserr.New(consenserr.InvalidWork, "no subset-sum witness found for derived problem")
	}

	seed := subsetsum.DeriveSeed(tip.Block.Hash(), commitEpoch, producer, 0)
	salt := []byte(fmt.Sprintf("salt-%d", time.Now().UnixNano()))
	leaf := commitment.BuildLeaf(seed, producer, commitEpoch, 0, subsetsum.EncodeSubset(witness), salt)

	return builder.MiningResult{
		CommitEpoch:      commitEpoch,
		CommitNonce:      0,
		Tier:             tier,
		DifficultyTarget: difficultyTarget,
		ProblemType:      0,
		Problem:          problem,
		CommitmentLeaves: []commitment.Leaf{leaf},
		WinningIndex:     0,
		Witness:          witness,
		Salt:             salt,
		OffchainCID:      offchainCID,
	}, nil
}

package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/fortiblox/X1-Cirrus/internal/types"
	"github.com/fortiblox/X1-Cirrus/pkg/accounts"
	"github.com/fortiblox/X1-Cirrus/pkg/entrypoint"
	"github.com/fortiblox/X1-Cirrus/pkg/fixture"
	"github.com/fortiblox/X1-Cirrus/pkg/host"
	"github.com/fortiblox/X1-Cirrus/pkg/pda"
	"github.com/fortiblox/X1-Cirrus/pkg/programs/counter"
	"github.com/fortiblox/X1-Cirrus/pkg/programs/digest"
	"github.com/fortiblox/X1-Cirrus/pkg/programs/hello"
	"github.com/fortiblox/X1-Cirrus/pkg/programs/system"
)

type builtin struct {
	name  string
	id    types.Pubkey
	eager entrypoint.Func
	lazy  entrypoint.Func
}

var builtins = []builtin{
	{"system", system.ProgramID, system.Entrypoint, system.Entrypoint},
	{"hello", hello.ProgramID, hello.Entrypoint, hello.Entrypoint},
	{"counter", counter.ProgramID, counter.Entrypoint, counter.EntrypointLazy},
	{"digest", digest.ProgramID, digest.Entrypoint, digest.Entrypoint},
}

func (b builtin) entry(lazy bool) entrypoint.Func {
	if lazy {
		return b.lazy
	}
	return b.eager
}

// resolveProgram accepts a builtin name or a base58 address.
func resolveProgram(s string) (types.Pubkey, error) {
	for _, b := range builtins {
		if b.name == s {
			return b.id, nil
		}
	}
	id, err := types.PubkeyFromBase58(s)
	if err != nil {
		return types.Pubkey{}, errors.Errorf("unknown program %q", s)
	}
	return id, nil
}

func builtinByID(id types.Pubkey) (builtin, bool) {
	for _, b := range builtins {
		if b.id == id {
			return b, true
		}
	}
	return builtin{}, false
}

// parseSeed decodes one seed argument: "hex:<bytes>", "key:<base58>",
// "u8:<n>" or a literal string.
func parseSeed(s string) ([]byte, error) {
	switch {
	case strings.HasPrefix(s, "hex:"):
		b, err := hex.DecodeString(s[4:])
		return b, errors.Wrapf(err, "seed %q", s)
	case strings.HasPrefix(s, "key:"):
		k, err := types.PubkeyFromBase58(s[4:])
		if err != nil {
			return nil, errors.Wrapf(err, "seed %q", s)
		}
		return k[:], nil
	case strings.HasPrefix(s, "u8:"):
		n, err := strconv.ParseUint(s[3:], 10, 8)
		if err != nil {
			return nil, errors.Wrapf(err, "seed %q", s)
		}
		return []byte{byte(n)}, nil
	}
	return []byte(s), nil
}

// parseHash decodes a state hash as printed by accounts, or "hex:<bytes>".
func parseHash(s string) (types.Hash, error) {
	if strings.HasPrefix(s, "hex:") {
		h, err := types.HashFromHex(s[4:])
		return h, errors.Wrapf(err, "hash %q", s)
	}
	h, err := types.HashFromBase58(s)
	return h, errors.Wrapf(err, "hash %q", s)
}

// world is the state a command runs against.
type world struct {
	db      accounts.DB
	exec    *host.Executor
	archive *fixture.Archive
	log     *logrus.Entry
}

// commonFlags registers the flags every state-touching command accepts.
func commonFlags(fs *flag.FlagSet, config *Config) {
	fs.StringVar(&config.StateDir, "state", config.StateDir, "accounts database directory (empty for in-memory)")
	fs.StringVar(&config.Capture, "capture", config.Capture, "archive to capture calls into")
	fs.Uint64Var(&config.ComputeBudget, "budget", config.ComputeBudget, "compute units per instruction")
}

func openWorld(config Config, lazy bool) (*world, error) {
	if err := checkBudget(config.ComputeBudget); err != nil {
		return nil, err
	}
	log := logrus.StandardLogger().WithField("type", "cirrus/world")

	var db accounts.DB
	if config.StateDir == "" {
		db = accounts.NewMemoryDB()
	} else {
		cfg := accounts.DefaultBadgerDBConfig(config.StateDir)
		cfg.Log = log.WithField("component", "badger")
		bdb, err := accounts.NewBadgerDB(cfg)
		if err != nil {
			return nil, err
		}
		db = bdb
	}

	w := &world{
		db:   db,
		exec: host.NewExecutor(host.Config{ComputeBudget: config.ComputeBudget}, db, log.WithField("component", "host")),
		log:  log,
	}
	for _, b := range builtins {
		w.exec.Register(b.id, b.entry(lazy))
	}

	if config.Capture != "" {
		archive, err := fixture.Open(config.Capture)
		if err != nil {
			db.Close()
			return nil, err
		}
		w.archive = archive
		w.exec.SetSink(archive)
	}
	return w, nil
}

func (w *world) Close() {
	if w.archive != nil {
		if err := w.archive.Close(); err != nil {
			w.log.WithError(err).Warn("failure closing archive")
		}
	}
	if err := w.db.Close(); err != nil {
		w.log.WithError(err).Warn("failure closing accounts database")
	}
}

func (w *world) execute(ctx context.Context, ix host.Instruction) (*host.Result, error) {
	res, err := w.exec.Execute(ctx, ix)
	if err != nil {
		return nil, err
	}
	printResult(ix, res)
	if res.Err != nil {
		return res, errors.Wrapf(res.Err, "%s failed with status %#x", ix.ProgramID, res.Status)
	}
	return res, nil
}

func printResult(ix host.Instruction, res *host.Result) {
	for _, line := range res.Logs {
		fmt.Println("  " + line)
	}
	fmt.Printf("program %s: status=%#x cu=%d modified=%d\n", ix.ProgramID, res.Status, res.ComputeUnitsUsed, len(res.Modified))
	if len(res.ReturnData) > 0 {
		fmt.Printf("  return %s\n", hex.EncodeToString(res.ReturnData))
	}
	if !res.DeltaHash.IsZero() {
		fmt.Printf("  delta %s\n", res.DeltaHash)
	}
	if res.Capture != "" {
		fmt.Printf("  captured as %s\n", res.Capture)
	}
}

func runDerive(_ context.Context, _ Config, args []string) error {
	fs := flag.NewFlagSet("derive", flag.ContinueOnError)
	programFlag := fs.String("program", "counter", "program name or address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	programID, err := resolveProgram(*programFlag)
	if err != nil {
		return err
	}
	seeds := make([][]byte, 0, fs.NArg())
	for _, arg := range fs.Args() {
		seed, err := parseSeed(arg)
		if err != nil {
			return err
		}
		seeds = append(seeds, seed)
	}

	derived, err := pda.Find(seeds, &programID)
	if err != nil {
		return err
	}
	fmt.Printf("%s %d\n", derived.Address(), derived.Bump())
	return nil
}

func runAirdrop(_ context.Context, config Config, args []string) error {
	fs := flag.NewFlagSet("airdrop", flag.ContinueOnError)
	commonFlags(fs, &config)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New("usage: airdrop <pubkey> <lamports>")
	}
	key, err := types.PubkeyFromBase58(fs.Arg(0))
	if err != nil {
		return err
	}
	lamports, err := strconv.ParseUint(fs.Arg(1), 10, 64)
	if err != nil {
		return errors.Wrap(err, "lamports")
	}

	w, err := openWorld(config, false)
	if err != nil {
		return err
	}
	defer w.Close()

	acc, err := w.db.GetAccount(key)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		acc, err = accounts.Empty(), nil
	}
	if err != nil {
		return err
	}
	if acc.Lamports+lamports < acc.Lamports {
		return errors.New("balance overflow")
	}
	acc.Lamports += lamports
	if err := w.db.Apply([]accounts.Entry{{Pubkey: key, Account: acc}}); err != nil {
		return err
	}
	fmt.Printf("%s: %d lamports\n", key, acc.Lamports)
	return nil
}

func runHello(ctx context.Context, config Config, args []string) error {
	fs := flag.NewFlagSet("hello", flag.ContinueOnError)
	commonFlags(fs, &config)
	name := fs.String("name", "", "capture name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	w, err := openWorld(config, false)
	if err != nil {
		return err
	}
	defer w.Close()

	_, err = w.execute(ctx, host.Instruction{
		Name:      *name,
		ProgramID: hello.ProgramID,
		Data:      []byte(strings.Join(fs.Args(), " ")),
	})
	return err
}

func runHash(ctx context.Context, config Config, args []string) error {
	fs := flag.NewFlagSet("hash", flag.ContinueOnError)
	commonFlags(fs, &config)
	algFlag := fs.String("alg", "sha256", "sha256, keccak256 or blake3")
	name := fs.String("name", "", "capture name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	alg, ok := digest.Algorithms[*algFlag]
	if !ok {
		return errors.Errorf("unknown algorithm %q", *algFlag)
	}

	w, err := openWorld(config, false)
	if err != nil {
		return err
	}
	defer w.Close()

	_, err = w.execute(ctx, host.Instruction{
		Name:      *name,
		ProgramID: digest.ProgramID,
		Data:      digest.Data(alg, []byte(strings.Join(fs.Args(), " "))),
	})
	return err
}

func runCounter(ctx context.Context, config Config, args []string) error {
	fs := flag.NewFlagSet("counter", flag.ContinueOnError)
	commonFlags(fs, &config)
	authorityFlag := fs.String("authority", "", "authority address (required)")
	lamports := fs.Uint64("lamports", 1_000_000, "lamports to fund a new counter with")
	to := fs.String("to", "", "destination for withdraw and close (default: authority)")
	lazy := fs.Bool("lazy", false, "use the lazy entrypoint")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *authorityFlag == "" || fs.NArg() == 0 {
		return errors.New("usage: counter -authority <key> <init|increment [n]|label <text>|withdraw <n>|close|show>")
	}
	authority, err := types.PubkeyFromBase58(*authorityFlag)
	if err != nil {
		return errors.Wrap(err, "authority")
	}
	dest := authority
	if *to != "" {
		if dest, err = types.PubkeyFromBase58(*to); err != nil {
			return errors.Wrap(err, "to")
		}
	}

	addr, bump, err := counter.Address(authority)
	if err != nil {
		return err
	}

	w, err := openWorld(config, *lazy)
	if err != nil {
		return err
	}
	defer w.Close()

	metas := []host.AccountMeta{
		{Pubkey: addr, IsWritable: true},
		{Pubkey: authority, IsSigner: true},
	}
	withDest := append(metas[:2:2], host.AccountMeta{Pubkey: dest, IsWritable: true})

	op, rest := fs.Arg(0), fs.Args()[1:]
	switch op {
	case "init":
		_, err = w.execute(ctx, host.Instruction{
			ProgramID: system.ProgramID,
			Accounts: []host.AccountMeta{
				{Pubkey: authority, IsSigner: true, IsWritable: true},
				{
					Pubkey:      addr,
					IsWritable:  true,
					Seeds:       append(counter.Seeds(authority), []byte{bump}),
					SeedProgram: counter.ProgramID,
				},
			},
			Data: system.CreateAccountData(*lamports, uint64(counter.Space), counter.ProgramID),
		})
		if err != nil {
			return err
		}
		_, err = w.execute(ctx, host.Instruction{ProgramID: counter.ProgramID, Accounts: metas, Data: counter.InitializeData()})

	case "increment":
		amount := uint64(1)
		if len(rest) > 0 {
			if amount, err = strconv.ParseUint(rest[0], 10, 64); err != nil {
				return errors.Wrap(err, "amount")
			}
		}
		_, err = w.execute(ctx, host.Instruction{ProgramID: counter.ProgramID, Accounts: metas, Data: counter.IncrementData(amount)})

	case "label":
		_, err = w.execute(ctx, host.Instruction{ProgramID: counter.ProgramID, Accounts: metas, Data: counter.SetLabelData(strings.Join(rest, " "))})

	case "withdraw":
		if len(rest) != 1 {
			return errors.New("usage: counter withdraw <lamports>")
		}
		n, perr := strconv.ParseUint(rest[0], 10, 64)
		if perr != nil {
			return errors.Wrap(perr, "lamports")
		}
		_, err = w.execute(ctx, host.Instruction{ProgramID: counter.ProgramID, Accounts: withDest, Data: counter.WithdrawData(n)})

	case "close":
		_, err = w.execute(ctx, host.Instruction{ProgramID: counter.ProgramID, Accounts: withDest, Data: counter.CloseData()})

	case "show":
	default:
		return errors.Errorf("unknown counter operation %q", op)
	}
	if err != nil {
		return err
	}

	acc, err := w.exec.Account(addr)
	if err != nil {
		return err
	}
	if acc == nil {
		fmt.Printf("counter %s: not created\n", addr)
		return nil
	}
	st, err := counter.Decode(acc.Data)
	if err != nil {
		return errors.Wrapf(err, "decode counter %s", addr)
	}
	fmt.Printf("counter %s: count=%d bump=%d lamports=%d label=%q\n", addr, st.Count, st.Bump, acc.Lamports, st.Label)
	return nil
}

func runAccounts(_ context.Context, config Config, args []string) error {
	fs := flag.NewFlagSet("accounts", flag.ContinueOnError)
	commonFlags(fs, &config)
	expect := fs.String("expect", "", "fail unless the state hash equals this one")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var want types.Hash
	if *expect != "" {
		h, err := parseHash(*expect)
		if err != nil {
			return err
		}
		want = h
	}

	w, err := openWorld(config, false)
	if err != nil {
		return err
	}
	defer w.Close()

	err = w.db.ForEach(func(key types.Pubkey, acc *accounts.Account) error {
		fmt.Printf("%-44s owner=%-44s lamports=%d data=%d\n", key, acc.Owner, acc.Lamports, len(acc.Data))
		return nil
	})
	if err != nil {
		return err
	}

	hash, err := accounts.ComputeStateHash(w.db)
	if err != nil {
		return err
	}
	count, err := w.db.AccountsCount()
	if err != nil {
		return err
	}
	fmt.Printf("accounts=%d version=%d state=%s\n", count, w.db.Version(), hash)
	if *expect != "" && hash != want {
		return errors.Errorf("state hash %s, expected %s", hash, want)
	}
	return nil
}

func runReplay(ctx context.Context, config Config, args []string) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	archivePath := fs.String("archive", config.Capture, "archive to replay from")
	lazy := fs.Bool("lazy", false, "replay through the lazy entrypoints")
	budget := fs.Uint64("budget", config.ComputeBudget, "compute units per call")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *archivePath == "" {
		return errors.New("replay needs -archive or a configured capture file")
	}
	if err := checkBudget(*budget); err != nil {
		return err
	}

	archive, err := fixture.Open(*archivePath)
	if err != nil {
		return err
	}
	defer archive.Close()

	names := fs.Args()
	if len(names) == 0 {
		if names, err = archive.List(); err != nil {
			return err
		}
	}

	failed := 0
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		c, err := archive.Get(name)
		if err != nil {
			return err
		}
		b, ok := builtinByID(c.ProgramID)
		if !ok {
			fmt.Printf("%s: skipped, program %s not bundled\n", name, c.ProgramID)
			continue
		}
		status, err := archive.Replay(name, b.entry(*lazy), *budget)
		switch {
		case errors.Is(err, fixture.ErrStatusMismatch):
			failed++
			fmt.Printf("%s: MISMATCH %v\n", name, err)
		case err != nil:
			return err
		default:
			fmt.Printf("%s: ok status=%#x\n", name, status)
		}
	}
	if failed > 0 {
		return errors.Errorf("%d of %d calls diverged", failed, len(names))
	}
	return nil
}

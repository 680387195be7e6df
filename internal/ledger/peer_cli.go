package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/projectTest192/FoodTrace/internal/util"
)

// PeerCLIConfig locates the fabric network and the peer binary used to reach it.
type PeerCLIConfig struct {
	Binary      string // defaults to "peer"
	NetworkPath string // working directory holding the network config
	Channel     string
	Chaincode   string
	Orderer     string // host:port, invoke only
	PeerAddress string // host:port
	MSPID       string
	MSPConfig   string
}

// peerCLI shells out to the fabric peer binary.  It is one adapter behind the
// Backend interface; a network RPC adapter can replace it without touching
// the ledger.
type peerCLI struct {
	cfg    PeerCLIConfig
	logger *zap.SugaredLogger
}

// type check the interface is implemented.
var _ Backend = &peerCLI{}

func NewPeerCLI(cfg PeerCLIConfig, logger *zap.SugaredLogger) Backend {
	if cfg.Binary == "" {
		cfg.Binary = "peer"
	}
	return &peerCLI{cfg: cfg, logger: logger}
}

func (p *peerCLI) args(commandType, function string, callArgs []string) ([]string, error) {
	request, err := json.Marshal(chaincodeRequest{Function: function, Args: callArgs})
	if err != nil {
		return nil, err
	}
	args := []string{
		"chaincode", commandType,
		"-C", p.cfg.Channel,
		"-n", p.cfg.Chaincode,
	}
	if commandType == "invoke" {
		args = append(args,
			"-o", p.cfg.Orderer,
			"--peerAddresses", p.cfg.PeerAddress,
			"--waitForEvent",
		)
	}
	return append(args, "-c", string(request)), nil
}

func (p *peerCLI) run(ctx context.Context, commandType, function string, callArgs []string) ([]byte, error) {
	args, err := p.args(commandType, function, callArgs)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, p.cfg.Binary, args...)
	cmd.Dir = p.cfg.NetworkPath
	cmd.Env = append(os.Environ(),
		"FABRIC_CFG_PATH="+p.cfg.NetworkPath,
		"CORE_PEER_TLS_ENABLED=false",
		"CORE_PEER_LOCALMSPID="+p.cfg.MSPID,
		"CORE_PEER_MSPCONFIGPATH="+p.cfg.MSPConfig,
		"CORE_PEER_ADDRESS="+p.cfg.PeerAddress,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		p.logger.Warnw("peer chaincode call failed",
			"type", commandType,
			"function", function,
			"stderr", strings.TrimSpace(stderr.String()),
			"error", err,
		)
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, err)
	}
	return stdout.Bytes(), nil
}

// runWithRetry absorbs transient peer flakiness; queries and invokes are both
// safe to repeat since the chaincode keys on the sequence number.
func (p *peerCLI) runWithRetry(ctx context.Context, commandType, function string, callArgs []string) ([]byte, error) {
	var out []byte
	err := util.RetryOperation(ctx, 500*time.Millisecond, 2, func() error {
		var err error
		out, err = p.run(ctx, commandType, function, callArgs)
		return err
	})
	return out, err
}

func (p *peerCLI) Invoke(ctx context.Context, function string, args []string) (string, error) {
	out, err := p.runWithRetry(ctx, "invoke", function, args)
	if err != nil {
		return "", err
	}
	// the peer prints the transaction id on success; treat it as opaque
	return strings.TrimSpace(string(out)), nil
}

func (p *peerCLI) Query(ctx context.Context, function string, args []string) (json.RawMessage, error) {
	out, err := p.runWithRetry(ctx, "query", function, args)
	if err != nil {
		return nil, err
	}
	out = bytes.TrimSpace(out)
	if !json.Valid(out) {
		return nil, fmt.Errorf("%w: query returned invalid json", ErrUnavailable)
	}
	return json.RawMessage(out), nil
}

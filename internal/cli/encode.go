package cli

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/spf13/cobra"

	"github.com/bsv-blockchain/ump-services/internal/ump"
	"github.com/bsv-blockchain/ump-services/pkg/types"
)

// EncodeOptions holds flags for the encode command.
type EncodeOptions struct {
	*RootOptions
	PresentationHash string
	RecoveryHash     string
	PubKey           string
	Fields           []string
}

// EncodeResult is the output of the encode command.
type EncodeResult struct {
	Script string `json:"script"`
	PubKey string `json:"pubKey"`
	// PrivKey is set only when the locking key was generated.
	PrivKey string `json:"privKey,omitempty"`
}

// NewEncodeCommand creates the encode command.
func NewEncodeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EncodeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Build a UMP token locking script",
		Long: `Build a push-drop locking script carrying a UMP token, for feeding
into admit or into tests.

The hashes land in fields 6 and 7. Up to six --field values fill fields
0 through 5; further values follow the hashes. Without --pubkey a fresh
secp256k1 key is generated and printed.

Examples:
  umpctl encode --presentation-hash 9f86d0... --recovery-hash 60303a...
  umpctl encode --presentation-hash 9f86d0... --recovery-hash 60303a... --pubkey 02ab... --field 0a0b`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEncode(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.PresentationHash, "presentation-hash", "", "presentation hash (hex, required)")
	cmd.Flags().StringVar(&opts.RecoveryHash, "recovery-hash", "", "recovery hash (hex, required)")
	cmd.Flags().StringVar(&opts.PubKey, "pubkey", "", "compressed locking public key (hex)")
	cmd.Flags().StringArrayVar(&opts.Fields, "field", nil, "additional field (hex, repeatable)")
	_ = cmd.MarkFlagRequired("presentation-hash")
	_ = cmd.MarkFlagRequired("recovery-hash")

	return cmd
}

func runEncode(opts *EncodeOptions, cmd *cobra.Command) error {
	presentation, err := types.HexToHash(opts.PresentationHash)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid presentation hash", err)
	}
	recovery, err := types.HexToHash(opts.RecoveryHash)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid recovery hash", err)
	}

	fields := make([][]byte, 0, len(opts.Fields))
	for i, f := range opts.Fields {
		b, err := hex.DecodeString(f)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("invalid field %d", i), err)
		}
		fields = append(fields, b)
	}

	var res EncodeResult
	var pub *secp256k1.PublicKey
	if opts.PubKey != "" {
		b, err := hex.DecodeString(opts.PubKey)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid public key hex", err)
		}
		pub, err = secp256k1.ParsePubKey(b)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid public key", err)
		}
	} else {
		priv, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to generate key", err)
		}
		pub = priv.PubKey()
		res.PrivKey = hex.EncodeToString(priv.Serialize())
	}
	res.PubKey = hex.EncodeToString(pub.SerializeCompressed())

	s, err := ump.LockToken(pub, presentation, recovery, fields)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build script", err)
	}
	res.Script = hex.EncodeToString(*s)

	return output(cmd.OutOrStdout(), opts.Format, res, func(w io.Writer) {
		if res.PrivKey != "" {
			fmt.Fprintf(w, "Private key: %s\n", res.PrivKey)
		}
		fmt.Fprintf(w, "Public key:  %s\n", res.PubKey)
		fmt.Fprintln(w, res.Script)
	})
}

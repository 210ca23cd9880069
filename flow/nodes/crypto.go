package nodes

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"

	"github.com/ragforge/flowengine/flow"
)

// registerCrypto installs the crypto node type:
// hashing and base64 encode/decode over input.data.
func registerCrypto(reg *flow.Registry) {
	flow.RegisterNodeType(reg, "crypto", func(n *flow.Node) (flow.NodeRunner, error) {
		return flow.NodeRunnerFunc(runCrypto), nil
	}, flow.TypeDefaults{
		Priority:       flow.PriorityNormal,
		Resources:      flow.Resources{CPUCores: 0.1, MemoryMB: 16},
		Parallelizable: true,
	})
}

func runCrypto(ctx context.Context, n *flow.Node, input map[string]any, execCtx *flow.ExecutionContext) (map[string]any, error) {
	data, _ := input["data"].(string)
	operation := n.ConfigString("operation")

	switch operation {
	case "hash":
		algo := n.ConfigString("algorithm")
		h, err := hasherFor(algo)
		if err != nil {
			return map[string]any{"operation": operation, "success": false}, nil
		}
		h.Write([]byte(data))
		return map[string]any{
			"hash_value": hex.EncodeToString(h.Sum(nil)),
			"operation":  operation,
			"success":    true,
		}, nil
	case "base64_encode":
		return map[string]any{
			"encoded_data": base64.StdEncoding.EncodeToString([]byte(data)),
			"operation":    operation,
			"success":      true,
		}, nil
	case "base64_decode":
		decoded, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return map[string]any{"operation": operation, "success": false}, nil
		}
		return map[string]any{
			"decoded_data": string(decoded),
			"operation":    operation,
			"success":      true,
		}, nil
	default:
		return nil, &flow.WorkflowError{Message: "crypto: unsupported operation " + operation, NodeID: n.ID, Kind: string(flow.KindConfiguration)}
	}
}

func hasherFor(algo string) (hash.Hash, error) {
	switch algo {
	case "md5":
		return md5.New(), nil
	case "sha1":
		return sha1.New(), nil
	case "sha256", "":
		return sha256.New(), nil
	case "sha512":
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", algo)
	}
}

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/NikhilRaikwar/Nexis/internal/chain"
	xerrors "github.com/NikhilRaikwar/Nexis/internal/errors"
	"github.com/NikhilRaikwar/Nexis/internal/events"
	"github.com/NikhilRaikwar/Nexis/internal/llm"
	"github.com/NikhilRaikwar/Nexis/internal/records"
)

func transferTokensTool() *Tool {
	return &Tool{
		Name:        "transfer_tokens",
		Description: "Send native currency from the bound wallet to a recipient and wait for on-chain confirmation.",
		Parameters: json.RawMessage(`{
  "type": "object",
  "properties": {
    "chain": {"type": "string", "description": "Chain key to transfer on"},
    "recipient": {"type": "string", "description": "Destination address"},
    "amount": {"type": "string", "description": "Decimal amount in the chain's native currency, e.g. \"0.1\""}
  },
  "required": ["chain", "recipient", "amount"]
}`),
		Run: runTransferTokens,
	}
}

func runTransferTokens(ctx context.Context, rt *Runtime, raw json.RawMessage) (string, error) {
	var args struct {
		Chain     string `json:"chain"`
		Recipient string `json:"recipient"`
		Amount    string `json:"amount"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return "", err
	}
	return rt.executeTransfer(ctx, args.Chain, args.Recipient, args.Amount)
}

// executeTransfer 校验参数、签名提交并等待确认。所有本地校验都先于
// 任何网络请求完成。
func (rt *Runtime) executeTransfer(ctx context.Context, chainKey, recipient, amount string) (string, error) {
	desc, err := rt.Registry.Lookup(chainKey)
	if err != nil {
		return "", err
	}
	signer := rt.Session.Signer(desc.Key)
	if signer == nil {
		return "", xerrors.Newf(xerrors.CodeNoWalletBound, "no wallet connected for %s, connect a wallet first", desc.Key)
	}

	var txHash, explorerURL string
	switch desc.Family {
	case chain.FamilySolana:
		lamports, err := parseAmount(amount, desc.CurrencyDecimals)
		if err != nil {
			return "", err
		}
		if !lamports.IsUint64() {
			return "", xerrors.Newf(xerrors.CodeInvalidAmount, "amount %q is out of range", amount)
		}
		client, err := rt.Solana.Client(desc)
		if err != nil {
			return "", err
		}
		result, err := client.TransferNative(ctx, signer.Ed25519(), recipient, lamports.Uint64())
		if err != nil {
			return "", err
		}
		txHash, explorerURL = result.Signature, result.ExplorerURL
	default:
		wei, err := parseAmount(amount, desc.CurrencyDecimals)
		if err != nil {
			return "", err
		}
		client, err := rt.EVM.Client(ctx, desc)
		if err != nil {
			return "", err
		}
		result, err := client.TransferNative(ctx, signer.ECDSA(), recipient, wei)
		if err != nil {
			return "", err
		}
		txHash, explorerURL = result.TxHash, result.ExplorerURL
	}

	rt.publish(ctx, events.TypeTransferConfirmed, desc.Key, map[string]string{
		"from":   signer.Address(),
		"to":     recipient,
		"amount": amount,
		"txHash": txHash,
	})
	rt.audit("transfer confirmed", "chain", desc.Key, "from", signer.Address(), "to", recipient, "amount", amount, "txHash", txHash)
	rt.saveRecord(ctx, records.Record{
		ID:          uuid.NewString(),
		SessionID:   rt.SessionID,
		ChainKey:    desc.Key,
		FromAddress: signer.Address(),
		ToAddress:   recipient,
		Amount:      amount,
		Symbol:      desc.CurrencySymbol,
		TxHash:      txHash,
		CreatedAt:   records.Stamp(),
	})

	return fmt.Sprintf("Transferred %s %s to %s on %s.\nTransaction hash: %s\nExplorer: %s",
		amount, desc.CurrencySymbol, recipient, desc.DisplayName, txHash, explorerURL), nil
}

func smartTransferTool() *Tool {
	return &Tool{
		Name:        "smart_transfer",
		Description: "Execute a transfer described in natural language, e.g. \"send 0.1 ETH to 0xdead... on baseSepolia\". Extracts the chain, recipient and amount, validates them, then transfers.",
		Parameters: json.RawMessage(`{
  "type": "object",
  "properties": {
    "instruction": {"type": "string", "description": "Natural-language transfer instruction"}
  },
  "required": ["instruction"]
}`),
		Run: runSmartTransfer,
	}
}

// extractionPrompt 约束抽取模型只输出结构化 JSON，绝不输出解释文字。
const extractionPrompt = `You extract transfer details from a user instruction.
Respond with a single JSON object and nothing else:
{"chain": "<chain key>", "recipient": "<destination address>", "amount": "<decimal amount>"}
Valid chain keys: %s.
If a field cannot be determined, use an empty string for it.`

func runSmartTransfer(ctx context.Context, rt *Runtime, raw json.RawMessage) (string, error) {
	var args struct {
		Instruction string `json:"instruction"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return "", err
	}
	if strings.TrimSpace(args.Instruction) == "" {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "transfer instruction is empty")
	}
	if rt.Extractor == nil {
		return "", xerrors.New(xerrors.CodeInitializationFailure, "instruction extraction is not configured")
	}

	resp, err := rt.Extractor.Chat(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: fmt.Sprintf(extractionPrompt, strings.Join(rt.Registry.Keys(), ", "))},
			{Role: llm.RoleUser, Content: args.Instruction},
		},
	})
	if err != nil {
		return "", err
	}

	extracted, err := parseExtraction(resp.Content)
	if err != nil {
		return "", err
	}
	// 抽取结果先过与显式转账完全相同的校验，任何字段缺失都不会执行。
	if extracted.Chain == "" || extracted.Recipient == "" || extracted.Amount == "" {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "could not extract chain, recipient and amount from the instruction")
	}
	return rt.executeTransfer(ctx, extracted.Chain, extracted.Recipient, extracted.Amount)
}

type extractedTransfer struct {
	Chain     string `json:"chain"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

// parseExtraction 容忍模型偶尔输出的 markdown 围栏，但要求内容必须是
// 合法的 JSON 对象。
func parseExtraction(content string) (*extractedTransfer, error) {
	text := strings.TrimSpace(content)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var extracted extractedTransfer
	if err := json.Unmarshal([]byte(text), &extracted); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "could not parse the extracted transfer details")
	}
	extracted.Chain = strings.TrimSpace(extracted.Chain)
	extracted.Recipient = strings.TrimSpace(extracted.Recipient)
	extracted.Amount = strings.TrimSpace(extracted.Amount)
	return &extracted, nil
}

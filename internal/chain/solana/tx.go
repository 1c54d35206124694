package solana

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/binary"

	"github.com/mr-tron/base58"

	xerrors "github.com/NikhilRaikwar/Nexis/internal/errors"
)

// systemProgramID 是系统程序地址（全零公钥）。
var systemProgramID = make([]byte, 32)

// systemTransferIndex 是系统程序中 Transfer 指令的编号。
const systemTransferIndex = 2

// buildTransferTransaction 构造并签名一笔单指令的系统转账，返回 base64 编码
// 后的完整交易。消息布局遵循 legacy 交易格式：
//
//	header || account keys || recent blockhash || instructions
func buildTransferTransaction(key ed25519.PrivateKey, recipient string, lamports uint64, blockhash string) (string, error) {
	from := key.Public().(ed25519.PublicKey)
	to, err := base58.Decode(recipient)
	if err != nil || len(to) != ed25519.PublicKeySize {
		return "", xerrors.Newf(xerrors.CodeInvalidAddress, "invalid recipient address %q", recipient)
	}
	if bytes.Equal(from, to) {
		return "", xerrors.New(xerrors.CodeInvalidAddress, "cannot transfer to the sending address")
	}
	blockhashRaw, err := base58.Decode(blockhash)
	if err != nil || len(blockhashRaw) != 32 {
		return "", xerrors.New(xerrors.CodeUpstreamFailure, "节点返回的 blockhash 不合法")
	}

	var message bytes.Buffer
	// header: 1 签名账户，0 只读签名账户，1 只读未签名账户（系统程序）。
	message.Write([]byte{1, 0, 1})

	writeCompactU16(&message, 3)
	message.Write(from)
	message.Write(to)
	message.Write(systemProgramID)

	message.Write(blockhashRaw)

	// 单条指令：programIdIndex=2，账户 [0 1]，data = u32 指令号 + u64 金额。
	writeCompactU16(&message, 1)
	message.WriteByte(2)
	writeCompactU16(&message, 2)
	message.Write([]byte{0, 1})

	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], systemTransferIndex)
	binary.LittleEndian.PutUint64(data[4:12], lamports)
	writeCompactU16(&message, len(data))
	message.Write(data)

	signature := ed25519.Sign(key, message.Bytes())

	var tx bytes.Buffer
	writeCompactU16(&tx, 1)
	tx.Write(signature)
	tx.Write(message.Bytes())

	return base64.StdEncoding.EncodeToString(tx.Bytes()), nil
}

// writeCompactU16 写入 shortvec 变长长度前缀。
func writeCompactU16(buf *bytes.Buffer, value int) {
	for {
		if value < 0x80 {
			buf.WriteByte(byte(value))
			return
		}
		buf.WriteByte(byte(value&0x7f | 0x80))
		value >>= 7
	}
}

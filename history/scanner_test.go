package history

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	gateway "github.com/iotaevm/gateway"
	"github.com/iotaevm/gateway/chains"
)

type mockReader struct {
	mu      sync.Mutex
	head    uint64
	headErr error
	blocks  map[uint64]*gateway.Block
	fail    map[uint64]bool
}

func (r *mockReader) BlockNumber(ctx context.Context) (uint64, error) {
	if r.headErr != nil {
		return 0, r.headErr
	}
	return r.head, nil
}

func (r *mockReader) BlockByNumber(ctx context.Context, number *big.Int, fullTxs bool) (*gateway.Block, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.head
	if number != nil {
		n = number.Uint64()
	}
	if r.fail[n] {
		return nil, gateway.Upstreamf(errors.New("boom"), "block %d", n)
	}
	b, ok := r.blocks[n]
	if !ok {
		return nil, gateway.NotFoundf("block %d", n)
	}
	return b, nil
}

func (r *mockReader) TransactionByHash(ctx context.Context, hash common.Hash) (*gateway.Transaction, error) {
	return nil, gateway.NotFoundf("transaction %s", hash)
}

func (r *mockReader) TransactionReceipt(ctx context.Context, hash common.Hash) (*gateway.Receipt, error) {
	return nil, gateway.NotFoundf("receipt %s", hash)
}

var (
	addrA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	addrB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	addrC = common.HexToAddress("0x00000000000000000000000000000000000000cc")
)

func nativeTx(n int, from common.Address, to *common.Address, value int64) *gateway.Transaction {
	return &gateway.Transaction{
		Hash:  common.BigToHash(big.NewInt(int64(n))),
		From:  from,
		To:    to,
		Value: big.NewInt(value),
	}
}

func inputTx(n int, from common.Address, to *common.Address, input []byte) *gateway.Transaction {
	tx := nativeTx(n, from, to, 0)
	tx.Input = input
	return tx
}

func testBlock(n, ts uint64, txs ...*gateway.Transaction) *gateway.Block {
	return &gateway.Block{
		Number:       n,
		Hash:         common.BigToHash(new(big.Int).SetUint64(n)),
		Timestamp:    ts,
		GasUsed:      1_000_000,
		GasLimit:     10_000_000,
		Transactions: txs,
	}
}

func iotaDescriptor(t *testing.T) chains.NetworkDescriptor {
	t.Helper()
	reg, err := chains.NewRegistry(nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	d, err := reg.ResolveName("iota")
	if err != nil {
		t.Fatalf("ResolveName: %v", err)
	}
	return d
}

// denseChain builds blocks [from, head] each holding txPerBlock simple
// transfers, timestamps 2s apart ending at nowUnix.
func denseChain(from, head uint64, txPerBlock int, nowUnix uint64) *mockReader {
	blocks := make(map[uint64]*gateway.Block, head-from+1)
	seq := 0
	for n := from; n <= head; n++ {
		txs := make([]*gateway.Transaction, txPerBlock)
		for i := range txs {
			seq++
			txs[i] = nativeTx(seq, addrA, &addrB, 1_000_000)
		}
		blocks[n] = testBlock(n, nowUnix-(head-n)*2, txs...)
	}
	return &mockReader{head: head, blocks: blocks, fail: map[uint64]bool{}}
}

// ---------------------------------------------------------------------------
// Classification and formatting helpers
// ---------------------------------------------------------------------------

func TestClassify(t *testing.T) {
	deploy := []byte{0x60, 0x80, 0x60, 0x40, 0x52}
	cases := []struct {
		name  string
		input []byte
		to    *common.Address
		want  string
	}{
		{"empty input", nil, &addrB, LabelNativeTransfer},
		{"zero byte input", []byte{0x00}, &addrB, LabelNativeTransfer},
		{"erc20 transfer", append(selERC20Transfer[:], make([]byte, 64)...), &addrB, LabelERC20Transfer},
		{"erc20 approve", append(selERC20Approve[:], make([]byte, 64)...), &addrB, LabelTokenApproval},
		{"erc721 transferFrom", append(selERC721Transfer[:], make([]byte, 96)...), &addrB, LabelERC721Transfer},
		{"erc1155 safeTransferFrom", selERC1155Transfer[:], &addrB, LabelERC1155Transfer},
		{"deployment", deploy, nil, LabelContractDeployment},
		{"other call", []byte{0xde, 0xad, 0xbe, 0xef}, &addrB, LabelContractInteraction},
		{"short unknown input", []byte{0x01, 0x02}, &addrB, LabelContractInteraction},
		{"selector wins over deployment", selERC20Transfer[:], nil, LabelERC20Transfer},
	}
	for _, tc := range cases {
		if got := Classify(tc.input, tc.to); got != tc.want {
			t.Errorf("%s: Classify = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestClassifySelectorValues(t *testing.T) {
	// Canonical selector bytes, pinned so an ABI helper regression cannot
	// silently relabel transactions.
	if got := fmt.Sprintf("%x", selERC20Transfer); got != "a9059cbb" {
		t.Fatalf("transfer selector = %s, want a9059cbb", got)
	}
	if got := fmt.Sprintf("%x", selERC20Approve); got != "095ea7b3" {
		t.Fatalf("approve selector = %s, want 095ea7b3", got)
	}
	if got := fmt.Sprintf("%x", selERC721Transfer); got != "23b872dd" {
		t.Fatalf("transferFrom selector = %s, want 23b872dd", got)
	}
	if got := fmt.Sprintf("%x", selERC1155Transfer); got != "f242432a" {
		t.Fatalf("safeTransferFrom selector = %s, want f242432a", got)
	}
}

func TestGasEfficiency(t *testing.T) {
	cases := []struct {
		used, limit uint64
		want        string
	}{
		{59, 100, "Excellent"},
		{0, 100, "Excellent"},
		{60, 100, "Good"},
		{79, 100, "Good"},
		{80, 100, "Fair"},
		{94, 100, "Fair"},
		{95, 100, "Poor"},
		{100, 100, "Poor"},
		{1, 0, "Unknown"},
	}
	for _, tc := range cases {
		if got := GasEfficiency(tc.used, tc.limit); got != tc.want {
			t.Errorf("GasEfficiency(%d, %d) = %q, want %q", tc.used, tc.limit, got, tc.want)
		}
	}
}

func TestFormatAge(t *testing.T) {
	cases := []struct {
		age  time.Duration
		want string
	}{
		{0, "0 seconds ago"},
		{-5 * time.Second, "0 seconds ago"},
		{1 * time.Second, "1 second ago"},
		{12 * time.Second, "12 seconds ago"},
		{59 * time.Second, "59 seconds ago"},
		{60 * time.Second, "1 minute ago"},
		{119 * time.Second, "1 minute ago"},
		{2 * time.Minute, "2 minutes ago"},
		{59 * time.Minute, "59 minutes ago"},
		{time.Hour, "1 hour ago"},
		{5 * time.Hour, "5 hours ago"},
		{24 * time.Hour, "1 day ago"},
		{49 * time.Hour, "2 days ago"},
	}
	for _, tc := range cases {
		if got := FormatAge(tc.age); got != tc.want {
			t.Errorf("FormatAge(%v) = %q, want %q", tc.age, got, tc.want)
		}
	}
}

func TestConfirmations(t *testing.T) {
	if got := Confirmations(100, 90); got != 10 {
		t.Fatalf("Confirmations(100, 90) = %d, want 10", got)
	}
	if got := Confirmations(90, 90); got != 0 {
		t.Fatalf("Confirmations(90, 90) = %d, want 0", got)
	}
	if got := Confirmations(89, 90); got != 0 {
		t.Fatalf("Confirmations(89, 90) = %d, want 0", got)
	}
}

// ---------------------------------------------------------------------------
// Scanning
// ---------------------------------------------------------------------------

func TestScanRecentWindow(t *testing.T) {
	now := uint64(time.Now().Unix())
	reader := denseChain(0, 99, 2, now)
	d := iotaDescriptor(t)

	res, err := NewScanner().ScanRecent(context.Background(), reader, d)
	if err != nil {
		t.Fatalf("ScanRecent: %v", err)
	}
	w := res.Window
	if w.FromBlock != 50 || w.ToBlock != 99 {
		t.Fatalf("window = %d..%d, want 50..99", w.FromBlock, w.ToBlock)
	}
	if w.BlocksRequested != 50 || w.BlocksScanned != 50 {
		t.Fatalf("blocks = %d/%d, want 50/50", w.BlocksScanned, w.BlocksRequested)
	}
	if w.TxInspected != 100 {
		t.Fatalf("TxInspected = %d, want 100", w.TxInspected)
	}
	if w.Truncated {
		t.Fatal("Truncated = true, want false")
	}
	if len(res.Txs) != 100 {
		t.Fatalf("len(Txs) = %d, want 100", len(res.Txs))
	}
	if res.Txs[0].BlockNumber != 99 {
		t.Fatalf("first tx from block %d, want newest block 99", res.Txs[0].BlockNumber)
	}
	if res.Txs[0].Label != LabelNativeTransfer {
		t.Fatalf("label = %q, want %q", res.Txs[0].Label, LabelNativeTransfer)
	}
	if res.Txs[0].Value != "1" {
		t.Fatalf("Value = %q, want 1 (6-decimal native)", res.Txs[0].Value)
	}
	if last := res.Txs[len(res.Txs)-1]; last.BlockNumber != 50 {
		t.Fatalf("last tx from block %d, want oldest block 50", last.BlockNumber)
	}
}

func TestScanTruncatesBusyBlocks(t *testing.T) {
	now := uint64(time.Now().Unix())
	reader := denseChain(0, 99, 2, now)
	busy := make([]*gateway.Transaction, 15)
	for i := range busy {
		busy[i] = nativeTx(1000+i, addrA, &addrB, 1_000_000)
	}
	reader.blocks[99] = testBlock(99, now, busy...)
	d := iotaDescriptor(t)

	res, err := NewScanner().ScanRecent(context.Background(), reader, d)
	if err != nil {
		t.Fatalf("ScanRecent: %v", err)
	}
	if !res.Window.Truncated {
		t.Fatal("Truncated = false, want true")
	}
	if res.Window.TxInspected != 10+49*2 {
		t.Fatalf("TxInspected = %d, want %d", res.Window.TxInspected, 10+49*2)
	}
	if res.Window.TxCap != DefaultTxPerBlock {
		t.Fatalf("TxCap = %d, want %d", res.Window.TxCap, DefaultTxPerBlock)
	}
}

func TestScanToleratesBlockFailures(t *testing.T) {
	now := uint64(time.Now().Unix())
	reader := denseChain(0, 99, 2, now)
	reader.fail[97] = true
	reader.fail[63] = true
	reader.fail[50] = true
	d := iotaDescriptor(t)

	res, err := NewScanner().ScanRecent(context.Background(), reader, d)
	if err != nil {
		t.Fatalf("ScanRecent: %v", err)
	}
	if res.Window.BlocksScanned != 47 {
		t.Fatalf("BlocksScanned = %d, want 47", res.Window.BlocksScanned)
	}
	if res.Window.BlocksRequested != 50 {
		t.Fatalf("BlocksRequested = %d, want 50", res.Window.BlocksRequested)
	}
	if res.Window.TxInspected != 94 {
		t.Fatalf("TxInspected = %d, want 94", res.Window.TxInspected)
	}
}

func TestScanShortChain(t *testing.T) {
	now := uint64(time.Now().Unix())
	reader := denseChain(0, 3, 1, now)
	d := iotaDescriptor(t)

	res, err := NewScanner().ScanRecent(context.Background(), reader, d)
	if err != nil {
		t.Fatalf("ScanRecent: %v", err)
	}
	w := res.Window
	if w.FromBlock != 0 || w.ToBlock != 3 {
		t.Fatalf("window = %d..%d, want 0..3", w.FromBlock, w.ToBlock)
	}
	if w.BlocksRequested != 4 || w.BlocksScanned != 4 {
		t.Fatalf("blocks = %d/%d, want 4/4", w.BlocksScanned, w.BlocksRequested)
	}
}

func TestScanHeadError(t *testing.T) {
	reader := &mockReader{headErr: gateway.Upstreamf(errors.New("boom"), "block number iota")}
	d := iotaDescriptor(t)

	_, err := NewScanner().ScanRecent(context.Background(), reader, d)
	if !errors.Is(err, gateway.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
}

// ---------------------------------------------------------------------------
// Address metrics
// ---------------------------------------------------------------------------

func TestAddressMetrics(t *testing.T) {
	now := uint64(time.Now().Unix())
	reader := denseChain(0, 99, 0, now)
	// addrC sends 5 and 3 units, receives 2, and makes one 1-unit
	// self-transfer that counts on both sides.
	reader.blocks[95] = testBlock(95, now-8,
		nativeTx(1, addrC, &addrB, 5_000_000),
		nativeTx(2, addrA, &addrC, 2_000_000),
	)
	reader.blocks[98] = testBlock(98, now-2,
		nativeTx(3, addrC, &addrB, 3_000_000),
		nativeTx(4, addrC, &addrC, 1_000_000),
	)
	d := iotaDescriptor(t)

	m, err := NewScanner().AddressMetrics(context.Background(), reader, d, addrC)
	if err != nil {
		t.Fatalf("AddressMetrics: %v", err)
	}
	if m.SentCount != 3 || m.ReceivedCount != 2 {
		t.Fatalf("counts = %d sent / %d received, want 3/2", m.SentCount, m.ReceivedCount)
	}
	if m.TxCount != 4 {
		t.Fatalf("TxCount = %d, want 4 distinct transactions", m.TxCount)
	}
	if m.TotalSentWei != "9000000" || m.TotalSent != "9" {
		t.Fatalf("sent = %s (%s), want 9000000 (9)", m.TotalSentWei, m.TotalSent)
	}
	if m.TotalReceivedWei != "3000000" || m.TotalReceived != "3" {
		t.Fatalf("received = %s (%s), want 3000000 (3)", m.TotalReceivedWei, m.TotalReceived)
	}
	if m.FirstSeen == nil || m.LastSeen == nil {
		t.Fatal("FirstSeen/LastSeen = nil, want timestamps")
	}
	if got := uint64(m.FirstSeen.Unix()); got != now-8 {
		t.Fatalf("FirstSeen = %d, want %d", got, now-8)
	}
	if got := uint64(m.LastSeen.Unix()); got != now-2 {
		t.Fatalf("LastSeen = %d, want %d", got, now-2)
	}
	if m.AccountAge == nil || !strings.HasSuffix(*m.AccountAge, "ago") {
		t.Fatalf("AccountAge = %v, want an age", m.AccountAge)
	}
	if m.Window.ToBlock != 99 {
		t.Fatalf("Window.ToBlock = %d, want 99", m.Window.ToBlock)
	}
}

func TestAddressMetricsNoActivity(t *testing.T) {
	now := uint64(time.Now().Unix())
	reader := denseChain(0, 99, 2, now)
	d := iotaDescriptor(t)

	m, err := NewScanner().AddressMetrics(context.Background(), reader, d, addrC)
	if err != nil {
		t.Fatalf("AddressMetrics: %v", err)
	}
	if m.TxCount != 0 || m.SentCount != 0 || m.ReceivedCount != 0 {
		t.Fatalf("counts = %d/%d/%d, want 0/0/0", m.TxCount, m.SentCount, m.ReceivedCount)
	}
	if m.TotalSentWei != "0" || m.TotalReceivedWei != "0" {
		t.Fatalf("totals = %s/%s, want 0/0", m.TotalSentWei, m.TotalReceivedWei)
	}
	if m.FirstSeen != nil || m.LastSeen != nil {
		t.Fatal("FirstSeen/LastSeen set, want nil for an unseen address")
	}
	if m.AccountAge != nil {
		t.Fatalf("AccountAge = %q, want nil for an unseen address", *m.AccountAge)
	}
}

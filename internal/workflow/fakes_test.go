package workflow

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"basedgift/offchain/internal/blockchain/evm"
	"basedgift/offchain/internal/models"
)

// fakeGateway is an in-memory EscrowGateway. Deposits and claims mutate the
// gifts map the way the real contract would, so claim-after-claim races
// behave like on-chain reverts.
type fakeGateway struct {
	mu sync.Mutex

	chainID int64
	sender  string
	usdc    string

	ethBalance  *big.Int
	usdcBalance *big.Int
	expiry      time.Duration

	gifts map[[32]byte]*models.GiftState

	approveErr error
	depositErr error
	claimErr   error

	approveCalls int
	depositCalls int
	claimCalls   int

	txSeq int
}

func newFakeGateway(chainID int64) *fakeGateway {
	return &fakeGateway{
		chainID:     chainID,
		sender:      "0x1111111111111111111111111111111111111111",
		usdc:        "0x2222222222222222222222222222222222222222",
		ethBalance:  big.NewInt(0),
		usdcBalance: big.NewInt(0),
		gifts:       make(map[[32]byte]*models.GiftState),
	}
}

func (g *fakeGateway) nextTx() string {
	g.txSeq++
	return fmt.Sprintf("0xtx%d", g.txSeq)
}

func (g *fakeGateway) ChainID() int64        { return g.chainID }
func (g *fakeGateway) SenderAddress() string { return g.sender }
func (g *fakeGateway) USDCAddress() string   { return g.usdc }

func (g *fakeGateway) ETHBalance(ctx context.Context) (*big.Int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return new(big.Int).Set(g.ethBalance), nil
}

func (g *fakeGateway) USDCBalance(ctx context.Context) (*big.Int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return new(big.Int).Set(g.usdcBalance), nil
}

func (g *fakeGateway) ApproveUSDC(ctx context.Context, amount *big.Int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.approveCalls++
	if g.approveErr != nil {
		return "", g.approveErr
	}
	return g.nextTx(), nil
}

func (g *fakeGateway) ApproveNFT(ctx context.Context, nftAddress string, tokenID *big.Int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.approveCalls++
	if g.approveErr != nil {
		return "", g.approveErr
	}
	return g.nextTx(), nil
}

func (g *fakeGateway) DepositUSDC(ctx context.Context, giftKey, secretHash [32]byte, amount *big.Int) (string, error) {
	return g.deposit(giftKey, g.usdc, amount, false)
}

func (g *fakeGateway) DepositETH(ctx context.Context, giftKey, secretHash [32]byte, amount *big.Int) (string, error) {
	return g.deposit(giftKey, "", amount, false)
}

func (g *fakeGateway) DepositNFT(ctx context.Context, giftKey, secretHash [32]byte, nftAddress string, tokenID *big.Int) (string, error) {
	return g.deposit(giftKey, nftAddress, tokenID, true)
}

func (g *fakeGateway) deposit(giftKey [32]byte, token string, amount *big.Int, isNFT bool) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.depositCalls++
	if g.depositErr != nil {
		return "", g.depositErr
	}
	g.gifts[giftKey] = &models.GiftState{
		Sender:          g.sender,
		TokenAddress:    token,
		AmountOrTokenID: new(big.Int).Set(amount),
		IsNFT:           isNFT,
	}
	return g.nextTx(), nil
}

func (g *fakeGateway) ClaimGift(ctx context.Context, giftKey [32]byte, secret []byte) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.claimCalls++
	if g.claimErr != nil {
		return "", g.claimErr
	}
	gift, ok := g.gifts[giftKey]
	if !ok {
		return "", &evm.RevertError{Reason: "Gift does not exist"}
	}
	if gift.Claimed {
		return "", &evm.RevertError{Reason: "Gift already claimed"}
	}
	gift.Claimed = true
	return g.nextTx(), nil
}

func (g *fakeGateway) Expiry(ctx context.Context) (time.Duration, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.expiry, nil
}

func (g *fakeGateway) GiftInfo(ctx context.Context, giftKey [32]byte) (*models.GiftState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	gift, ok := g.gifts[giftKey]
	if !ok {
		return nil, nil
	}
	clone := *gift
	return &clone, nil
}

// fakeProvider holds one fakeGateway per chain and tracks the active one.
type fakeProvider struct {
	mu        sync.Mutex
	active    int64
	gateways  map[int64]*fakeGateway
	switchErr error
	switches  int
}

func newFakeProvider(gateways ...*fakeGateway) *fakeProvider {
	p := &fakeProvider{gateways: make(map[int64]*fakeGateway)}
	for _, gw := range gateways {
		p.gateways[gw.chainID] = gw
	}
	if len(gateways) > 0 {
		p.active = gateways[0].chainID
	}
	return p
}

func (p *fakeProvider) ActiveChainID() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

func (p *fakeProvider) Gateway(chainID int64) (EscrowGateway, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	gw, ok := p.gateways[chainID]
	if !ok {
		return nil, false
	}
	return gw, true
}

func (p *fakeProvider) Switch(ctx context.Context, chainID int64) (EscrowGateway, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.switches++
	if p.switchErr != nil {
		return nil, p.switchErr
	}
	gw, ok := p.gateways[chainID]
	if !ok {
		return nil, errors.New("no gateway configured for chain")
	}
	p.active = chainID
	return gw, nil
}

// fakeRecords is an in-memory RecordStore.
type fakeRecords struct {
	mu sync.Mutex

	records map[string]*models.GiftRecord

	createErr error
	getErr    error
	markErr   error

	createCalls int
	markCalls   int
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{records: make(map[string]*models.GiftRecord)}
}

func (r *fakeRecords) Create(ctx context.Context, record *models.GiftRecord) (*models.GiftRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createCalls++
	if r.createErr != nil {
		return nil, r.createErr
	}
	clone := *record
	r.records[record.ID] = &clone
	return &clone, nil
}

func (r *fakeRecords) Get(ctx context.Context, id string) (*models.GiftRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	record, ok := r.records[id]
	if !ok {
		return nil, nil
	}
	clone := *record
	return &clone, nil
}

func (r *fakeRecords) MarkClaimed(ctx context.Context, id, receiverAddress, claimTxHash string) (*models.GiftRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markCalls++
	if r.markErr != nil {
		return nil, r.markErr
	}
	record, ok := r.records[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	// Claimed never flips back to created.
	record.Status = models.RecordStatusClaimed
	record.ReceiverAddress = &receiverAddress
	record.ClaimTxHash = &claimTxHash
	clone := *record
	return &clone, nil
}

func asWorkflowError(t interface{ Fatalf(string, ...interface{}) }, err error) *Error {
	var werr *Error
	if !errors.As(err, &werr) {
		t.Fatalf("expected *workflow.Error, got %T: %v", err, err)
	}
	return werr
}

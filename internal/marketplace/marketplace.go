// internal/marketplace/marketplace.go
package marketplace

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/sonic-defi/internal/address"
	"github.com/rovshanmuradov/sonic-defi/internal/blockchain"
	"github.com/rovshanmuradov/sonic-defi/internal/blockchain/contracts"
	"github.com/rovshanmuradov/sonic-defi/internal/events"
	"github.com/rovshanmuradov/sonic-defi/internal/transaction"
	"github.com/rovshanmuradov/sonic-defi/internal/types"
	processlog "github.com/rovshanmuradov/sonic-defi/internal/utils/logger"
	"github.com/rovshanmuradov/sonic-defi/internal/utils/metrics"
)

const (
	txTypeList        = "list_nft"
	txTypeDelist      = "delist_nft"
	txTypeBuy         = "buy_nft"
	txTypeTransfer    = "transfer_nft"
	txTypeApproveNFTs = "nft_approval"

	nativeDecimals = 18
)

var (
	ErrNotConfigured   = errors.New("marketplace contract not configured")
	ErrInvalidTokenID  = errors.New("invalid NFT token id")
	ErrNotOwner        = errors.New("account does not own this NFT")
	ErrListingInactive = errors.New("listing is not active")
)

// Approver выдает ERC20 allowance маркетплейсу при оплате токеном.
type Approver interface {
	Ensure(ctx context.Context, token, spender, amount, owner string) (bool, common.Hash, error)
}

// Result is the outcome of a marketplace write.
type Result struct {
	Hash      string   `json:"hash"`
	Simulated bool     `json:"simulated"`
	Approvals []string `json:"approvals,omitempty"`
}

// Marketplace торгует ERC721 токенами через контракт маркетплейса.
type Marketplace struct {
	backend  blockchain.Backend
	address  string
	approver Approver
	gas      GasEstimator
	tx       *transaction.Manager
	sessions types.SessionSource
	delay    time.Duration
	metrics  *metrics.Collector
	bus      *events.Bus
	logger   *zap.Logger
}

func New(
	backend blockchain.Backend,
	marketplaceAddress string,
	approver Approver,
	gasEst GasEstimator,
	tx *transaction.Manager,
	sessions types.SessionSource,
	simulatedDelay time.Duration,
	collector *metrics.Collector,
	bus *events.Bus,
	logger *zap.Logger,
) *Marketplace {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Marketplace{
		backend:  backend,
		address:  marketplaceAddress,
		approver: approver,
		gas:      gasEst,
		tx:       tx,
		sessions: sessions,
		delay:    simulatedDelay,
		metrics:  collector,
		bus:      bus,
		logger:   logger.Named("marketplace"),
	}
}

// Address returns the configured marketplace contract (possibly a placeholder).
func (m *Marketplace) Address() string {
	return m.address
}

// Simulated reports whether writes are simulated.
func (m *Marketplace) Simulated() bool {
	return address.IsPlaceholder(m.address)
}

// GetListing reads the listing of tokenID in collection nft.
func (m *Marketplace) GetListing(ctx context.Context, nft, tokenID string) (*contracts.Listing, error) {
	if m.Simulated() {
		return nil, ErrNotConfigured
	}
	nftAddr, id, err := parseNFT(nft, tokenID)
	if err != nil {
		return nil, err
	}
	listing, err := contracts.GetListing(ctx, m.backend, common.HexToAddress(m.address), nftAddr, id)
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return &listing, nil
}

// List выставляет NFT на продажу. При отсутствии approval для маркетплейса
// сначала отправляется setApprovalForAll. price задается в единицах
// paymentToken; пустой, native или нулевой адрес означает оплату в S.
func (m *Marketplace) List(ctx context.Context, nft, tokenID, price, paymentToken, owner string) (*Result, error) {
	res, err := m.list(ctx, nft, tokenID, price, paymentToken, owner)
	m.publish(txTypeList, nft, tokenID, owner, res, err)
	return res, err
}

// Delist снимает NFT с продажи.
func (m *Marketplace) Delist(ctx context.Context, nft, tokenID, owner string) (*Result, error) {
	res, err := m.delist(ctx, nft, tokenID, owner)
	m.publish(txTypeDelist, nft, tokenID, owner, res, err)
	return res, err
}

// Buy покупает активный листинг. ERC20-оплата сначала проходит через
// allowance, нативная оплата передается как value.
func (m *Marketplace) Buy(ctx context.Context, nft, tokenID, buyer string) (*Result, error) {
	res, err := m.buy(ctx, nft, tokenID, buyer)
	m.publish(txTypeBuy, nft, tokenID, buyer, res, err)
	return res, err
}

// Transfer передает NFT напрямую через ERC721 transferFrom.
func (m *Marketplace) Transfer(ctx context.Context, nft, tokenID, from, to string) (*Result, error) {
	res, err := m.transfer(ctx, nft, tokenID, from, to)
	m.publish(txTypeTransfer, nft, tokenID, from, res, err)
	return res, err
}

// publish сообщает подписчикам о завершенной операции; ошибки не публикуются.
func (m *Marketplace) publish(action, nft, tokenID, account string, res *Result, err error) {
	if err != nil || res == nil {
		return
	}
	_ = m.bus.Publish(&events.MarketplaceEvent{
		BaseEvent: events.NewBase(events.MarketplaceSettled),
		Action:    action,
		NFT:       address.Normalize(nft),
		TokenID:   tokenID,
		Account:   address.Normalize(account),
		Hash:      res.Hash,
		Approvals: res.Approvals,
		Simulated: res.Simulated,
	})
}

func (m *Marketplace) list(ctx context.Context, nft, tokenID, price, paymentToken, owner string) (*Result, error) {
	nftAddr, id, err := parseNFT(nft, tokenID)
	if err != nil {
		return nil, err
	}
	ownerAddr, err := address.Parse(owner)
	if err != nil {
		return nil, fmt.Errorf("owner: %w", err)
	}
	if _, ok := types.ParsePositiveAmount(price); !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrInvalidAmount, price)
	}
	payment, err := parsePayment(paymentToken)
	if err != nil {
		return nil, err
	}
	log := m.logger.With(zap.String("nft", nftAddr.Hex()), zap.String("token_id", id.String()))

	if m.Simulated() {
		return m.simulate(ctx, txTypeList, log)
	}

	market, signer, err := m.writer(ctx, ownerAddr)
	if err != nil {
		return nil, err
	}
	if err := m.requireOwner(ctx, nftAddr, id, ownerAddr); err != nil {
		return nil, err
	}
	rawPrice, err := m.parsePrice(ctx, price, payment)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	approved, err := contracts.IsApprovedForAll(ctx, m.backend, nftAddr, ownerAddr, market)
	if err != nil {
		return nil, fmt.Errorf("read approval: %w", err)
	}
	if !approved {
		data, err := contracts.PackSetApprovalForAll(market, true)
		if err != nil {
			return nil, fmt.Errorf("pack setApprovalForAll: %w", err)
		}
		log.Info("Approving marketplace for collection")
		receipt, err := m.tx.SendAndConfirm(ctx, signer, txTypeApproveNFTs, blockchain.TxRequest{To: nftAddr, Data: data})
		if err != nil {
			return nil, err
		}
		res.Approvals = append(res.Approvals, receipt.Hash)
	}

	data, err := contracts.PackListNft(nftAddr, id, rawPrice, payment)
	if err != nil {
		return nil, fmt.Errorf("pack listNft: %w", err)
	}
	log.Info("Listing NFT", zap.String("price", price), zap.String("payment_token", payment.Hex()))
	receipt, err := m.tx.SendAndConfirm(ctx, signer, txTypeList, blockchain.TxRequest{To: market, Data: data})
	if err != nil {
		return nil, err
	}
	res.Hash = receipt.Hash
	return res, nil
}

func (m *Marketplace) delist(ctx context.Context, nft, tokenID, owner string) (*Result, error) {
	nftAddr, id, err := parseNFT(nft, tokenID)
	if err != nil {
		return nil, err
	}
	ownerAddr, err := address.Parse(owner)
	if err != nil {
		return nil, fmt.Errorf("owner: %w", err)
	}
	log := m.logger.With(zap.String("nft", nftAddr.Hex()), zap.String("token_id", id.String()))

	if m.Simulated() {
		return m.simulate(ctx, txTypeDelist, log)
	}
	market, signer, err := m.writer(ctx, ownerAddr)
	if err != nil {
		return nil, err
	}
	data, err := contracts.PackDelistNft(nftAddr, id)
	if err != nil {
		return nil, fmt.Errorf("pack delistNft: %w", err)
	}
	log.Info("Delisting NFT")
	receipt, err := m.tx.SendAndConfirm(ctx, signer, txTypeDelist, blockchain.TxRequest{To: market, Data: data})
	if err != nil {
		return nil, err
	}
	return &Result{Hash: receipt.Hash}, nil
}

func (m *Marketplace) buy(ctx context.Context, nft, tokenID, buyer string) (*Result, error) {
	nftAddr, id, err := parseNFT(nft, tokenID)
	if err != nil {
		return nil, err
	}
	buyerAddr, err := address.Parse(buyer)
	if err != nil {
		return nil, fmt.Errorf("buyer: %w", err)
	}
	log := m.logger.With(zap.String("nft", nftAddr.Hex()), zap.String("token_id", id.String()))

	if m.Simulated() {
		return m.simulate(ctx, txTypeBuy, log)
	}
	market, signer, err := m.writer(ctx, buyerAddr)
	if err != nil {
		return nil, err
	}

	listing, err := contracts.GetListing(ctx, m.backend, market, nftAddr, id)
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	if !listing.Active {
		return nil, ErrListingInactive
	}

	res := &Result{}
	value := new(big.Int)
	if listing.PaymentToken == (common.Address{}) {
		value.Set(listing.Price)
	} else {
		decimals, err := contracts.Decimals(ctx, m.backend, listing.PaymentToken)
		if err != nil {
			return nil, fmt.Errorf("read payment decimals: %w", err)
		}
		amount := types.FormatUnits(listing.Price, decimals)
		approved, hash, err := m.approver.Ensure(ctx, listing.PaymentToken.Hex(), market.Hex(), amount, buyerAddr.Hex())
		if err != nil {
			return nil, fmt.Errorf("approve payment: %w", err)
		}
		if approved {
			res.Approvals = append(res.Approvals, hash.Hex())
		}
	}

	data, err := contracts.PackBuyNft(nftAddr, id)
	if err != nil {
		return nil, fmt.Errorf("pack buyNft: %w", err)
	}
	log.Info("Buying NFT",
		zap.String("seller", listing.Seller.Hex()),
		zap.String("price", listing.Price.String()),
		zap.String("payment_token", listing.PaymentToken.Hex()))
	receipt, err := m.tx.SendAndConfirm(ctx, signer, txTypeBuy, blockchain.TxRequest{To: market, Data: data, Value: value})
	if err != nil {
		return nil, err
	}
	res.Hash = receipt.Hash
	return res, nil
}

func (m *Marketplace) transfer(ctx context.Context, nft, tokenID, from, to string) (*Result, error) {
	fromAddr, err := address.Parse(from)
	if err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	toAddr, err := address.Parse(to)
	if err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	log := m.logger.With(zap.String("nft", nft), zap.String("token_id", tokenID))

	if address.IsPlaceholder(nft) {
		if _, ok := new(big.Int).SetString(tokenID, 10); !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTokenID, tokenID)
		}
		return m.simulate(ctx, txTypeTransfer, log)
	}
	nftAddr, id, err := parseNFT(nft, tokenID)
	if err != nil {
		return nil, err
	}

	signer, err := types.SignerFor(m.sessions, fromAddr)
	if err != nil {
		return nil, err
	}
	if err := m.requireOwner(ctx, nftAddr, id, fromAddr); err != nil {
		return nil, err
	}
	data, err := contracts.PackNFTTransferFrom(fromAddr, toAddr, id)
	if err != nil {
		return nil, fmt.Errorf("pack transferFrom: %w", err)
	}
	log.Info("Transferring NFT", zap.String("to", toAddr.Hex()))
	receipt, err := m.tx.SendAndConfirm(ctx, signer, txTypeTransfer, blockchain.TxRequest{To: nftAddr, Data: data})
	if err != nil {
		return nil, err
	}
	return &Result{Hash: receipt.Hash}, nil
}

// writer проверяет контракт маркетплейса и возвращает signer сессии.
func (m *Marketplace) writer(ctx context.Context, owner common.Address) (common.Address, blockchain.Signer, error) {
	market, err := address.Parse(m.address)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("marketplace: %w", err)
	}
	signer, err := types.SignerFor(m.sessions, owner)
	if err != nil {
		return common.Address{}, nil, err
	}
	ok, err := blockchain.HasCode(ctx, m.backend, market)
	if err != nil {
		return common.Address{}, nil, err
	}
	if !ok {
		return common.Address{}, nil, fmt.Errorf("%w: %s", types.ErrContractNotFound, market.Hex())
	}
	return market, signer, nil
}

func (m *Marketplace) requireOwner(ctx context.Context, nft common.Address, id *big.Int, owner common.Address) error {
	current, err := contracts.OwnerOf(ctx, m.backend, nft, id)
	if err != nil {
		return fmt.Errorf("read owner: %w", err)
	}
	if current != owner {
		return fmt.Errorf("%w: token %s owned by %s", ErrNotOwner, id, current.Hex())
	}
	return nil
}

func (m *Marketplace) parsePrice(ctx context.Context, price string, payment common.Address) (*big.Int, error) {
	decimals := uint8(nativeDecimals)
	if payment != (common.Address{}) {
		d, err := contracts.Decimals(ctx, m.backend, payment)
		if err != nil {
			return nil, fmt.Errorf("read payment decimals: %w", err)
		}
		decimals = d
	}
	raw, err := types.ParseUnits(price, decimals)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidAmount, err)
	}
	return raw, nil
}

func (m *Marketplace) simulate(ctx context.Context, txType string, log *zap.Logger) (*Result, error) {
	log.Warn("Marketplace not configured, simulating",
		zap.String("type", txType),
		zap.String("mode", address.ModeSimulated.String()))
	receipt, err := transaction.Simulate(ctx, m.delay)
	if err != nil {
		return nil, err
	}
	m.metrics.RecordSimulated(txType)
	processlog.WithTransaction(log, receipt.Hash, processlog.TxSimulated).Info("Marketplace operation simulated")
	return &Result{Hash: receipt.Hash, Simulated: true}, nil
}

func parseNFT(nft, tokenID string) (common.Address, *big.Int, error) {
	nftAddr, err := address.Parse(nft)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("nft: %w", err)
	}
	id, ok := new(big.Int).SetString(strings.TrimSpace(tokenID), 10)
	if !ok || id.Sign() < 0 {
		return common.Address{}, nil, fmt.Errorf("%w: %q", ErrInvalidTokenID, tokenID)
	}
	return nftAddr, id, nil
}

func parsePayment(token string) (common.Address, error) {
	if token == "" || address.IsNative(token) {
		return common.Address{}, nil
	}
	addr, err := address.Parse(token)
	if err != nil {
		return common.Address{}, fmt.Errorf("payment token: %w", err)
	}
	return addr, nil
}

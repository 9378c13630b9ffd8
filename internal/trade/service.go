package trade

import (
	"context"
	"errors"
	"strings"
	"time"

	"brokerage_system/internal/domain"
	"brokerage_system/internal/events"
	"brokerage_system/internal/ledger"
	"brokerage_system/internal/market"
	"brokerage_system/internal/metrics"
	"brokerage_system/internal/shares"
	"brokerage_system/internal/utils"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service runs trade orders through the state machine
type Service struct {
	db      *gorm.DB
	rdb     *redis.Client
	events  events.Publisher
	metrics *metrics.Metrics
}

// NewService wires the service. rdb, pub and m may be nil.
func NewService(db *gorm.DB, rdb *redis.Client, pub events.Publisher, m *metrics.Metrics) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{db: db, rdb: rdb, events: pub, metrics: m}
}

// CreateRequest describes a new order
type CreateRequest struct {
	Type          domain.OrderType
	CustomerID    uint // only honoured for admins placing an order on behalf of a customer
	BrokerID      uint
	CompanyID     uint
	Shares        int64
	PricePerShare decimal.Decimal // zero means the company's closing price
	Currency      string
	Notes         string
}

// Create places a new order in pending_broker_approval
func (s *Service) Create(ctx context.Context, actor domain.Actor, req CreateRequest) (*domain.TradeOrder, error) {
	if req.Type != domain.OrderBuy && req.Type != domain.OrderSell {
		return nil, domain.Errorf(domain.KindInvalidInput, "unknown order type %q", req.Type)
	}
	if req.Shares < 1 {
		return nil, domain.Errorf(domain.KindInvalidQuantity, "an order needs at least one share")
	}
	customerID := actor.UserID
	switch {
	case actor.IsAdmin() && req.CustomerID != 0:
		customerID = req.CustomerID
	case actor.Role != domain.RoleCustomer && !actor.IsAdmin():
		return nil, domain.Errorf(domain.KindForbidden, "only customers place orders")
	}
	currency, err := domain.NormalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}

	var broker domain.User
	err = s.db.WithContext(ctx).Where("id = ? AND role = ?", req.BrokerID, domain.RoleBroker).First(&broker).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.Errorf(domain.KindNotFound, "broker %d not found", req.BrokerID)
	} else if err != nil {
		return nil, err
	}
	company, err := market.NewStore(s.db).Get(ctx, req.CompanyID)
	if err != nil {
		return nil, err
	}
	price := req.PricePerShare
	if price.IsZero() {
		price = company.ClosingPrice
	}
	if !price.IsPositive() {
		return nil, domain.Errorf(domain.KindInvalidInput, "%s has no tradable price", company.Symbol)
	}

	total, err := domain.NormalizeAmount(price.Mul(decimal.NewFromInt(req.Shares)), currency)
	if err != nil {
		return nil, domain.Errorf(domain.KindInvalidInput, "%d %s at %s is not payable: %v", req.Shares, company.Symbol, price, err)
	}

	order := &domain.TradeOrder{
		Type:          req.Type,
		CustomerID:    customerID,
		BrokerID:      broker.ID,
		CompanyID:     company.ID,
		Shares:        req.Shares,
		PricePerShare: price,
		TotalValue:    total,
		Currency:      currency,
		Status:        domain.StatusPendingBrokerApproval,
		Notes:         domain.ClipNotes(req.Notes),
	}
	if err := s.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	s.committed(ctx, actor, order, "", nil)
	return order, nil
}

// Get returns an order visible to the actor
func (s *Service) Get(ctx context.Context, actor domain.Actor, id uint) (*domain.TradeOrder, error) {
	var order domain.TradeOrder
	if err := s.db.WithContext(ctx).First(&order, id).Error; err != nil {
		return nil, orderNotFound(err, id)
	}
	if partiesOf(actor, &order) == 0 {
		return nil, domain.Errorf(domain.KindForbidden, "order %d is not yours", id)
	}
	return &order, nil
}

// ListFilter narrows order listings
type ListFilter struct {
	Status domain.OrderStatus
	Type   domain.OrderType
}

// List returns the orders the actor is party to, newest first
func (s *Service) List(ctx context.Context, actor domain.Actor, f ListFilter, page, size int) ([]domain.TradeOrder, int64, error) {
	q := s.db.WithContext(ctx).Model(&domain.TradeOrder{})
	switch actor.Role {
	case domain.RoleAdmin:
	case domain.RoleBroker:
		q = q.Where("broker_id = ?", actor.UserID)
	default:
		q = q.Where("customer_id = ?", actor.UserID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var orders []domain.TradeOrder
	err := q.Order("created_at desc").Order("id desc").Offset((page - 1) * size).Limit(size).Find(&orders).Error
	return orders, total, err
}

// AdvanceRequest asks for one status change
type AdvanceRequest struct {
	To               domain.OrderStatus
	PaymentReference string // required when confirming payment
	Notes            string
}

// Advance moves an order along the state machine. Settlement, refunds and
// the admin override all happen here, inside one unit of work holding the
// order row lock; on any error the order keeps its previous status.
func (s *Service) Advance(ctx context.Context, actor domain.Actor, id uint, req AdvanceRequest) (*domain.TradeOrder, error) {
	var (
		order *domain.TradeOrder
		from  domain.OrderStatus
		moved []*domain.WalletTransaction
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = lockOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		from = order.Status
		rule, err := Authorize(actor, order, req.To)
		if err != nil {
			return err
		}

		switch {
		case rule.Settles:
			moved, err = settle(ctx, tx, order)
			if err != nil {
				return err
			}
		case req.To == domain.StatusPaymentConfirmed:
			ref := strings.TrimSpace(req.PaymentReference)
			if ref == "" {
				return domain.Errorf(domain.KindInvalidInput, "payment proof reference is required")
			}
			order.PaymentReference = &ref
			order.Status = req.To
		case req.To == domain.StatusPendingMarketListing:
			h, err := shares.NewRegistry(tx).GetHolding(ctx, order.CustomerID, order.CompanyID)
			if err != nil {
				return err
			}
			if h.Shares < order.Shares {
				return domain.Errorf(domain.KindInsufficientShares, "seller holds %d shares, order is for %d", h.Shares, order.Shares)
			}
			order.Status = req.To
		case req.To == domain.StatusCancelled || req.To == domain.StatusRejected:
			if order.Type == domain.OrderBuy && order.PaidFromWallet && order.Status == domain.StatusPaymentConfirmed {
				refund, err := s.refund(ctx, tx, order)
				if err != nil {
					return err
				}
				moved = append(moved, refund)
			}
			order.Status = req.To
		case req.To == domain.StatusCompleted:
			now := time.Now().UTC()
			order.Status = domain.StatusCompleted
			order.CompletedAt = &now
		default:
			order.Status = req.To
		}
		if req.Notes != "" {
			order.Notes = domain.ClipNotes(req.Notes)
		}
		return tx.Save(order).Error
	})
	if err != nil {
		return nil, err
	}
	if req.To == domain.StatusCompleted {
		logrus.WithFields(logrus.Fields{
			"order_id": order.ID,
			"from":     from,
			"admin_id": actor.UserID,
		}).Warn("Trade order completed by admin override without settlement")
	}
	s.committed(ctx, actor, order, from, moved)
	return order, nil
}

// AttachPaymentProof records the customer's payment proof and confirms payment
func (s *Service) AttachPaymentProof(ctx context.Context, actor domain.Actor, id uint, reference string) (*domain.TradeOrder, error) {
	return s.Advance(ctx, actor, id, AdvanceRequest{To: domain.StatusPaymentConfirmed, PaymentReference: reference})
}

// PayFromWallet pays a buy order in pending_payment from the customer's
// wallet and confirms payment in the same unit of work.
func (s *Service) PayFromWallet(ctx context.Context, actor domain.Actor, id uint) (*domain.TradeOrder, error) {
	var (
		order *domain.TradeOrder
		from  domain.OrderStatus
		paid  *domain.WalletTransaction
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = lockOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		from = order.Status
		if _, err := Authorize(actor, order, domain.StatusPaymentConfirmed); err != nil {
			return err
		}
		store := ledger.NewStore(tx)
		w, err := store.WalletFor(ctx, order.CustomerID, order.Currency)
		if err != nil {
			return err
		}
		paid, err = store.RecordSettled(ctx, &domain.WalletTransaction{
			UserID:    order.CustomerID,
			WalletID:  w.ID,
			Direction: domain.Debit,
			Kind:      domain.KindTradePayment,
			Amount:    order.TotalValue,
			Currency:  order.Currency,
			Notes:     "payment for trade order",
		})
		if err != nil {
			return err
		}
		order.PaymentReference = &paid.Reference
		order.PaidFromWallet = true
		order.Status = domain.StatusPaymentConfirmed
		return tx.Save(order).Error
	})
	if err != nil {
		return nil, err
	}
	s.committed(ctx, actor, order, from, []*domain.WalletTransaction{paid})
	return order, nil
}

// settle moves shares (and, for a sale, money) and completes the order.
// Buy: company pool -> buyer holding. Sell: seller holding -> company pool,
// proceeds credited to the seller's wallet.
func settle(ctx context.Context, tx *gorm.DB, order *domain.TradeOrder) ([]*domain.WalletTransaction, error) {
	companies := market.NewStore(tx)
	holdings := shares.NewRegistry(tx)
	var moved []*domain.WalletTransaction

	switch order.Type {
	case domain.OrderBuy:
		if _, err := companies.DecrementVolume(ctx, order.CompanyID, order.Shares); err != nil {
			return nil, err
		}
		if _, err := holdings.CreditShares(ctx, order.CustomerID, order.CompanyID, order.Shares, order.PricePerShare); err != nil {
			return nil, err
		}
	case domain.OrderSell:
		if _, err := holdings.DebitShares(ctx, order.CustomerID, order.CompanyID, order.Shares); err != nil {
			return nil, err
		}
		if _, err := companies.IncrementVolume(ctx, order.CompanyID, order.Shares); err != nil {
			return nil, err
		}
		store := ledger.NewStore(tx)
		w, err := store.WalletFor(ctx, order.CustomerID, order.Currency)
		if err != nil {
			return nil, err
		}
		proceeds, err := store.RecordSettled(ctx, &domain.WalletTransaction{
			UserID:    order.CustomerID,
			WalletID:  w.ID,
			Direction: domain.Credit,
			Kind:      domain.KindSaleProceeds,
			Amount:    order.TotalValue,
			Currency:  order.Currency,
			Notes:     "proceeds of trade order",
		})
		if err != nil {
			return nil, err
		}
		moved = append(moved, proceeds)
	}
	now := time.Now().UTC()
	order.Status = domain.StatusCompleted
	order.CompletedAt = &now
	return moved, nil
}

func (s *Service) refund(ctx context.Context, tx *gorm.DB, order *domain.TradeOrder) (*domain.WalletTransaction, error) {
	store := ledger.NewStore(tx)
	w, err := store.WalletFor(ctx, order.CustomerID, order.Currency)
	if err != nil {
		return nil, err
	}
	return store.RecordSettled(ctx, &domain.WalletTransaction{
		UserID:    order.CustomerID,
		WalletID:  w.ID,
		Direction: domain.Credit,
		Kind:      domain.KindTradeRefund,
		Amount:    order.TotalValue,
		Currency:  order.Currency,
		Notes:     "refund of cancelled trade order",
	})
}

// committed runs the after-commit side effects: log, metrics, events and
// cache invalidation. None of them can fail the operation.
func (s *Service) committed(ctx context.Context, actor domain.Actor, order *domain.TradeOrder, from domain.OrderStatus, moved []*domain.WalletTransaction) {
	logrus.WithFields(logrus.Fields{
		"order_id":    order.ID,
		"type":        order.Type,
		"customer_id": order.CustomerID,
		"broker_id":   order.BrokerID,
		"actor_id":    actor.UserID,
		"from":        from,
		"to":          order.Status,
		"total":       order.TotalValue.String(),
	}).Info("Trade order updated")
	s.metrics.Transition(string(order.Type), string(order.Status))
	s.events.Publish(ctx, events.Event{
		Type:     events.TradeOrderUpdated,
		UserID:   order.CustomerID,
		OrderID:  order.ID,
		Status:   string(order.Status),
		Amount:   order.TotalValue.String(),
		Currency: order.Currency,
	})
	for _, txn := range moved {
		s.metrics.LedgerEntry(string(txn.Direction), string(txn.Kind))
		s.events.Publish(ctx, events.Event{
			Type:      events.WalletTransactionUpdated,
			UserID:    txn.UserID,
			Reference: txn.Reference,
			OrderID:   order.ID,
			Status:    string(txn.Status),
			Amount:    txn.Amount.String(),
			Currency:  txn.Currency,
		})
	}
	if order.Status == domain.StatusCompleted || len(moved) > 0 {
		if err := utils.InvalidateUser(ctx, s.rdb, order.CustomerID); err != nil {
			logrus.WithError(err).Warn("Failed to invalidate user cache")
		}
		_ = utils.DeleteCache(ctx, s.rdb, utils.CompanyKey(order.CompanyID))
	}
}

func lockOrder(ctx context.Context, tx *gorm.DB, id uint) (*domain.TradeOrder, error) {
	var order domain.TradeOrder
	if err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, id).Error; err != nil {
		return nil, orderNotFound(err, id)
	}
	return &order, nil
}

func orderNotFound(err error, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Errorf(domain.KindNotFound, "trade order %d not found", id)
	}
	return err
}

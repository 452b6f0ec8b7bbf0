package http

import (
	"context"
	"net/url"

	"storefront/internal/domain"
	"storefront/internal/services"
)

type CartUseCase interface {
	GetCartItems(ctx context.Context, page, limit int) (*domain.CartPage, error)
	RefreshCart(ctx context.Context) (*domain.CartPage, error)
	AddToCart(ctx context.Context, productID string, quantity int64) (*domain.CartItem, error)
	UpdateCartItem(ctx context.Context, snapshot domain.CartSnapshot, productID string, newQuantity int64) error
	RemoveFromCart(ctx context.Context, snapshot domain.CartSnapshot, productID string) error
}

type OrderUseCase interface {
	Checkout(ctx context.Context, cartIDs []string) (*domain.CheckoutResult, error)
	GetAllOrders(ctx context.Context, q domain.OrderQuery) (*domain.OrderPage, error)
	PayOrder(ctx context.Context, orderCode string) (*domain.PaymentSession, error)
}

type PaymentCallbackUseCase interface {
	Process(ctx context.Context, q url.Values) (*domain.CallbackOutcome, error)
}

type AuthUseCase interface {
	Login(ctx context.Context, creds domain.Credentials) (*domain.Tokens, error)
	Me(ctx context.Context) (*domain.UserProfile, error)
}

var (
	_ CartUseCase            = (*services.CartService)(nil)
	_ OrderUseCase           = (*services.OrderService)(nil)
	_ PaymentCallbackUseCase = (*services.PaymentCallbackService)(nil)
	_ AuthUseCase            = (*services.AuthService)(nil)
)

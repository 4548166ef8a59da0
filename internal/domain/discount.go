package domain

import "github.com/shopspring/decimal"

const (
	// MaxItemQuantity ограничивает число одинаковых товаров в одной позиции.
	MaxItemQuantity = 20

	tenPercentFromQuantity    = 4
	twentyPercentFromQuantity = 10
)

var (
	discountNone   = decimal.Zero
	discountTen    = decimal.New(10, -2)
	discountTwenty = decimal.New(20, -2)
)

// DiscountForQuantity возвращает ставку скидки для количества одинаковых товаров:
// до 4 штук скидки нет, 4–9 дают 10%, 10–20 дают 20%. Больше 20 продавать нельзя.
func DiscountForQuantity(quantity int) (decimal.Decimal, error) {
	switch {
	case quantity > MaxItemQuantity:
		return decimal.Zero, ErrInvalidQuantity
	case quantity >= twentyPercentFromQuantity:
		return discountTwenty, nil
	case quantity >= tenPercentFromQuantity:
		return discountTen, nil
	default:
		return discountNone, nil
	}
}

// discountTierMessage описывает ожидаемую скидку для сообщения валидации.
func discountTierMessage(quantity int) string {
	switch {
	case quantity >= twentyPercentFromQuantity:
		return "Discount must be 20% for quantities between 10 and 20."
	case quantity >= tenPercentFromQuantity:
		return "Discount must be 10% for quantities between 4 and 9."
	default:
		return "Discount must be 0 for quantities below 4."
	}
}

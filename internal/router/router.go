package router

import (
	"net/http"

	"golang.org/x/time/rate"

	"github.com/senyabanana/auction-service/internal/handlers"
	"github.com/senyabanana/auction-service/internal/models"
	"github.com/senyabanana/auction-service/internal/utils"
)

// InitRoutes собирает маршруты сервиса. Маршруты ставок проходят через
// ограничитель частоты: горячий аукцион не должен выедать пул соединений.
func InitRoutes(productHandler *handlers.ProductHandler, auctionHandler *handlers.AuctionHandler, bidHandler *handlers.BidHandler, settlementHandler *handlers.SettlementHandler, bidLimiter *rate.Limiter) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/ping", handlers.PingHandler)

	mux.HandleFunc("POST /api/products", productHandler.SubmitProduct)
	mux.HandleFunc("GET /api/products/my", productHandler.GetMyProducts)
	mux.HandleFunc("GET /api/products/review", productHandler.GetReviewQueue)
	mux.HandleFunc("GET /api/products/{productId}", productHandler.GetProduct)
	mux.HandleFunc("PUT /api/products/{productId}/approve", productHandler.ApproveDocuments)
	mux.HandleFunc("PUT /api/products/{productId}/reject", productHandler.RejectDocuments)

	mux.HandleFunc("POST /api/inspections/{productId}", productHandler.OpenInspection)
	mux.HandleFunc("PUT /api/inspections/{inspectionId}/approve", productHandler.ApproveInspection)
	mux.HandleFunc("PUT /api/inspections/{inspectionId}/reject", productHandler.RejectInspection)

	mux.HandleFunc("POST /api/auctions", auctionHandler.CreateAuction)
	mux.HandleFunc("GET /api/auctions/live", auctionHandler.GetLiveAuctions)
	mux.HandleFunc("GET /api/auctions/won", auctionHandler.GetWonAuctions)
	mux.HandleFunc("GET /api/auctions/{auctionId}", auctionHandler.GetAuction)
	mux.HandleFunc("GET /api/auctions/{auctionId}/price", bidHandler.GetPrice)
	mux.HandleFunc("PUT /api/auctions/{auctionId}/start", auctionHandler.StartAuction)
	mux.HandleFunc("PUT /api/auctions/{auctionId}/end", auctionHandler.EndAuction)
	mux.HandleFunc("PUT /api/auctions/{auctionId}/cancel", auctionHandler.CancelAuction)

	mux.HandleFunc("POST /api/auctions/{auctionId}/bids", withRateLimit(bidLimiter, bidHandler.PlaceBid))
	mux.HandleFunc("POST /api/auctions/{auctionId}/proxy-bids", withRateLimit(bidLimiter, bidHandler.PlaceProxyBid))
	mux.HandleFunc("GET /api/auctions/{auctionId}/bids", bidHandler.GetAuctionBids)
	mux.HandleFunc("GET /api/auctions/{auctionId}/proxy-bids/my", bidHandler.GetMyProxyBid)
	mux.HandleFunc("GET /api/bids/my", bidHandler.GetMyBids)

	mux.HandleFunc("POST /api/payments/checkout", settlementHandler.Checkout)
	mux.HandleFunc("POST /api/payments/webhook", settlementHandler.Webhook)
	mux.HandleFunc("GET /api/payments/{auctionId}", settlementHandler.GetPayment)
	mux.HandleFunc("POST /api/deliveries", settlementHandler.ChooseDelivery)
	mux.HandleFunc("PUT /api/deliveries/{deliveryId}", settlementHandler.UpdateDelivery)
	mux.HandleFunc("PUT /api/deliveries/{deliveryId}/complete", settlementHandler.CompleteDelivery)

	return mux
}

// withRateLimit отклоняет запрос, когда лимит ставок исчерпан.
func withRateLimit(limiter *rate.Limiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			utils.SendErrorResponse(w, http.StatusTooManyRequests, models.CodeBusy, "too many bids, retry later")
			return
		}
		next(w, r)
	}
}

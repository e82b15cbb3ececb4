package services

import (
	"context"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/senyabanana/auction-service/internal/models"
	"github.com/senyabanana/auction-service/internal/notify"
	"github.com/senyabanana/auction-service/internal/repository/memory"
)

var (
	seller    = models.Principal{UserID: "seller-1", Role: models.RoleSeller}
	admin     = models.Principal{UserID: "admin-1", Role: models.RoleAdmin}
	inspector = models.Principal{UserID: "inspector-1", Role: models.RoleInspector}
)

type productFixture struct {
	store   *memory.Store
	emitter *notify.CaptureEmitter
	svc     *ProductService
}

func newProductFixture(t *testing.T) *productFixture {
	t.Helper()
	store := memory.NewStore()
	emitter := &notify.CaptureEmitter{}
	return &productFixture{
		store:   store,
		emitter: emitter,
		svc:     NewProductService(store.Products(), store.Inspections(), emitter),
	}
}

func (f *productFixture) submit(t *testing.T) *models.Product {
	t.Helper()
	product, err := f.svc.Submit(context.Background(), seller, models.ProductRequest{
		Title:       "vintage watch",
		Description: "1960s chronograph",
		Category:    "watches",
	})
	assert.NoError(t, err)
	return product
}

func TestSubmitProduct(t *testing.T) {
	f := newProductFixture(t)

	product := f.submit(t)
	check.Equal(t, models.PendingProduct, product.Status)
	check.Equal(t, "seller-1", product.SellerID)
	check.True(t, containsKind(f.emitter.Kinds(), notify.ProductStatusChanged))
}

func TestSubmitRequiresSellerRole(t *testing.T) {
	f := newProductFixture(t)

	_, err := f.svc.Submit(context.Background(), admin, models.ProductRequest{Title: "x", Description: "y", Category: "z"})
	check.Equal(t, models.CodeForbidden, errorCode(t, err))
}

// Полный путь допуска: документы, осмотр, APPROVED.
func TestFullApprovalPath(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()
	product := f.submit(t)

	approved, err := f.svc.ApproveDocuments(ctx, admin, product.ID, "papers in order")
	assert.NoError(t, err)
	check.Equal(t, models.DocApprovedProduct, approved.Status)

	inspection, err := f.svc.CreateOrReuseInspection(ctx, inspector, product.ID)
	assert.NoError(t, err)
	check.Equal(t, models.OpenInspection, inspection.Status)

	current, err := f.svc.GetProduct(ctx, product.ID)
	assert.NoError(t, err)
	check.Equal(t, models.InspectionPendingProduct, current.Status)

	decided, err := f.svc.ApproveInspection(ctx, inspector, inspection.ID, "matches description")
	assert.NoError(t, err)
	check.Equal(t, models.ApprovedInspection, decided.Status)

	final, err := f.svc.GetProduct(ctx, product.ID)
	assert.NoError(t, err)
	check.Equal(t, models.ApprovedProduct, final.Status)
}

func TestRejectDocumentsRequiresReason(t *testing.T) {
	f := newProductFixture(t)
	product := f.submit(t)

	_, err := f.svc.RejectDocuments(context.Background(), admin, product.ID, "")
	check.Equal(t, models.CodeValidationError, errorCode(t, err))

	rejected, err := f.svc.RejectDocuments(context.Background(), admin, product.ID, "forged certificate")
	assert.NoError(t, err)
	check.Equal(t, models.DocRejectedProduct, rejected.Status)
	check.Equal(t, "forged certificate", rejected.RejectionReason)
}

// Повторный вызов инспектора возвращает уже открытый осмотр.
func TestInspectionReuse(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()
	product := f.submit(t)

	_, err := f.svc.ApproveDocuments(ctx, admin, product.ID, "")
	assert.NoError(t, err)

	first, err := f.svc.CreateOrReuseInspection(ctx, inspector, product.ID)
	assert.NoError(t, err)

	second, err := f.svc.CreateOrReuseInspection(ctx, inspector, product.ID)
	assert.NoError(t, err)
	check.Equal(t, first.ID, second.ID)
}

func TestInspectionRequiresDocApproval(t *testing.T) {
	f := newProductFixture(t)
	product := f.submit(t)

	_, err := f.svc.CreateOrReuseInspection(context.Background(), inspector, product.ID)
	check.Equal(t, models.CodeInvalidState, errorCode(t, err))
}

func TestRejectedInspectionClosesProduct(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()
	product := f.submit(t)

	_, err := f.svc.ApproveDocuments(ctx, admin, product.ID, "")
	assert.NoError(t, err)
	inspection, err := f.svc.CreateOrReuseInspection(ctx, inspector, product.ID)
	assert.NoError(t, err)

	_, err = f.svc.RejectInspection(ctx, inspector, inspection.ID, "damaged beyond description")
	assert.NoError(t, err)

	final, err := f.svc.GetProduct(ctx, product.ID)
	assert.NoError(t, err)
	check.Equal(t, models.RejectedProduct, final.Status)
	check.True(t, final.Status.IsTerminal())
}

func TestInspectionDecidedOnlyOnce(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()
	product := f.submit(t)

	_, err := f.svc.ApproveDocuments(ctx, admin, product.ID, "")
	assert.NoError(t, err)
	inspection, err := f.svc.CreateOrReuseInspection(ctx, inspector, product.ID)
	assert.NoError(t, err)

	_, err = f.svc.ApproveInspection(ctx, inspector, inspection.ID, "")
	assert.NoError(t, err)

	_, err = f.svc.ApproveInspection(ctx, inspector, inspection.ID, "")
	check.Equal(t, models.CodeInvalidState, errorCode(t, err))
}

func TestInvalidTransitionRejected(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()
	product := f.submit(t)

	_, err := f.svc.ApproveDocuments(ctx, admin, product.ID, "")
	assert.NoError(t, err)

	// Документы уже одобрены, второе одобрение - недопустимый переход.
	_, err = f.svc.ApproveDocuments(ctx, admin, product.ID, "")
	check.Equal(t, models.CodeInvalidState, errorCode(t, err))
}

func TestDocumentReviewRequiresAdmin(t *testing.T) {
	f := newProductFixture(t)
	product := f.submit(t)

	_, err := f.svc.ApproveDocuments(context.Background(), inspector, product.ID, "")
	check.Equal(t, models.CodeForbidden, errorCode(t, err))
}

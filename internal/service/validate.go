package service

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strings"

	serrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/model"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var productCodePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// productDraft is the fully coerced product candidate checked before it reaches the store.
// Field order is the order in which failures are reported.
type productDraft struct {
	Title       string          `json:"title" validate:"required,min=3,max=100"`
	Description string          `json:"description" validate:"required,min=10,max=500"`
	Code        string          `json:"code" validate:"required,min=2,max=50,productcode"`
	Price       decimal.Decimal `json:"price" validate:"gte=0.01,lte=999999"`
	Stock       int             `json:"stock" validate:"gte=0,lte=999999"`
	Category    string          `json:"category" validate:"required,category"`
	Status      bool            `json:"status"`
	Thumbnails  []string        `json:"thumbnails" validate:"max=5,dive,url"`
}

func draftOf(p model.Product) productDraft {
	return productDraft{
		Title:       p.Title,
		Description: p.Description,
		Code:        p.Code,
		Price:       p.Price,
		Stock:       p.Stock,
		Category:    p.Category,
		Status:      p.Status,
		Thumbnails:  slices.Clone(p.Thumbnails),
	}
}

func (d productDraft) applyTo(p *model.Product) {
	p.Title = d.Title
	p.Description = d.Description
	p.Code = d.Code
	p.Price = d.Price
	p.Stock = d.Stock
	p.Category = d.Category
	p.Status = d.Status
	p.Thumbnails = d.Thumbnails
	if p.Thumbnails == nil {
		p.Thumbnails = []string{}
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	if err := v.RegisterValidation("productcode", func(fl validator.FieldLevel) bool {
		return productCodePattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("failed to register productcode validation: %v", err))
	}
	if err := v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return slices.Contains(model.Categories, fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("failed to register category validation: %v", err))
	}
	return v
}

// toValidationError converts the first validator failure into a ValidationError.
func toValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return fmt.Errorf("failed to validate product: %w", err)
	}
	fe := validationErrors[0]
	field := fe.Field()
	if i := strings.IndexByte(field, '['); i >= 0 {
		field = field[:i]
	}
	return serrors.NewValidationError(field, "%s", describe(fe))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must have at most %s entries", fe.Param())
		}
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	case "productcode":
		return "may only contain letters, digits, '.', '_' and '-'"
	case "category":
		return "must be one of: " + strings.Join(model.Categories, ", ")
	case "url":
		return "must be a valid URL"
	default:
		return "failed on rule: " + fe.Tag()
	}
}

type draftStep struct {
	goName   string
	field    func(ProductInput) Field
	required bool
	apply    func(f Field, d *productDraft) error
}

var draftSteps = []draftStep{
	{goName: "Title", field: func(in ProductInput) Field { return in.Title }, required: true, apply: func(f Field, d *productDraft) (err error) {
		d.Title, err = f.String("title")
		return err
	}},
	{goName: "Description", field: func(in ProductInput) Field { return in.Description }, required: true, apply: func(f Field, d *productDraft) (err error) {
		d.Description, err = f.String("description")
		return err
	}},
	{goName: "Code", field: func(in ProductInput) Field { return in.Code }, required: true, apply: func(f Field, d *productDraft) (err error) {
		d.Code, err = f.String("code")
		return err
	}},
	{goName: "Price", field: func(in ProductInput) Field { return in.Price }, required: true, apply: func(f Field, d *productDraft) (err error) {
		d.Price, err = f.Decimal("price")
		return err
	}},
	{goName: "Stock", field: func(in ProductInput) Field { return in.Stock }, required: true, apply: func(f Field, d *productDraft) (err error) {
		d.Stock, err = f.Int("stock")
		return err
	}},
	{goName: "Category", field: func(in ProductInput) Field { return in.Category }, required: true, apply: func(f Field, d *productDraft) error {
		c, err := f.String("category")
		d.Category = strings.ToLower(c)
		return err
	}},
	{goName: "Status", field: func(in ProductInput) Field { return in.Status }, apply: func(f Field, d *productDraft) (err error) {
		d.Status, err = f.Bool("status")
		return err
	}},
	{goName: "Thumbnails", field: func(in ProductInput) Field { return in.Thumbnails }, apply: func(f Field, d *productDraft) (err error) {
		d.Thumbnails, err = f.Strings("thumbnails")
		return err
	}},
}

// buildDraft coerces the present fields of in onto base and validates the result.
// With create set, missing required fields fail. The first failing field in draft order wins,
// whether it failed coercion or a validation rule.
func buildDraft(v *validator.Validate, base productDraft, in ProductInput, create bool) (productDraft, error) {
	d := base
	for i, step := range draftSteps {
		f := step.field(in)
		var stepErr error
		switch {
		case !f.Present() && create && step.required:
			stepErr = serrors.NewValidationError(strings.ToLower(step.goName), "is required")
		case !f.Present():
			continue
		default:
			stepErr = step.apply(f, &d)
		}
		if stepErr == nil {
			continue
		}
		if i > 0 {
			prior := make([]string, i)
			for j := range i {
				prior[j] = draftSteps[j].goName
			}
			if err := v.StructPartial(d, prior...); err != nil {
				return d, toValidationError(err)
			}
		}
		return d, stepErr
	}
	if err := v.Struct(d); err != nil {
		return d, toValidationError(err)
	}
	return d, nil
}

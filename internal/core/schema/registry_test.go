package schema_test

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/fluentsql/internal/core/schema"
)

type Customer struct {
	Id   int
	Name string
}

type Order struct {
	Id         int    `orm:"pk"`
	OrderNo    string `db:"order_no"`
	CustomerId int
	Created    time.Time
	Secret     string     `db:"-"`
	Customer   *Customer  `orm:"fk:CustomerId"`
	Items      []LineItem `orm:"fk:OrderId"`
}

type LineItem struct {
	Id      int
	OrderId int
	Sku     string
}

func (LineItem) TableName() string { return "order_lines" }

func newRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	r := schema.NewRegistry()
	require.NoError(t, r.Register(Order{}, &Customer{}, LineItem{}))
	require.NoError(t, r.Freeze())
	return r
}

func TestRegister_TablesAndColumns(t *testing.T) {
	r := newRegistry(t)

	order, err := r.Entity("Order")
	require.NoError(t, err)
	assert.Equal(t, "orders", order.Table)
	assert.Equal(t, []string{"id", "order_no", "customer_id", "created"}, order.ColumnNames())
	assert.Equal(t, "Id", order.PrimaryKey().Member)

	items, err := r.Entity("LineItem")
	require.NoError(t, err)
	assert.Equal(t, "order_lines", items.Table)

	customer, err := r.EntityOf(&Customer{})
	require.NoError(t, err)
	assert.Equal(t, "customers", customer.Table)
	assert.Equal(t, "Id", customer.PrimaryKey().Member)
}

func TestRegister_Navigations(t *testing.T) {
	r := newRegistry(t)

	nav, target, err := r.Relation("Order", "Customer")
	require.NoError(t, err)
	assert.Equal(t, schema.OneToOne, nav.Kind)
	assert.Equal(t, "Customer", target.Name)
	assert.Equal(t, "CustomerId", nav.ForeignKey)
	assert.Equal(t, "Id", nav.References)

	nav, target, err = r.Relation("Order", "Items")
	require.NoError(t, err)
	assert.Equal(t, schema.OneToMany, nav.Kind)
	assert.Equal(t, "LineItem", target.Name)
	assert.Equal(t, "OrderId", nav.ForeignKey)
	assert.Equal(t, "Id", nav.References)
}

func TestColumn_UnknownMember(t *testing.T) {
	r := newRegistry(t)
	order, err := r.Entity("Order")
	require.NoError(t, err)

	_, err = order.Column("Secret")
	assert.ErrorIs(t, err, schema.ErrUnknownMember)

	col, err := order.Column("orderno")
	require.NoError(t, err)
	assert.Equal(t, "order_no", col.Name)
}

func TestFreeze_RejectsChanges(t *testing.T) {
	r := newRegistry(t)
	assert.ErrorIs(t, r.Register(struct{ Id int }{}), schema.ErrFrozen)
}

func TestFreeze_UnknownNavigationTarget(t *testing.T) {
	r := schema.NewRegistry()
	require.NoError(t, r.Register(Order{}, Customer{}))
	err := r.Freeze()
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrUnknownEntity)
	assert.False(t, r.Frozen())
}

func TestTableName(t *testing.T) {
	tests := []struct {
		entity string
		want   string
	}{
		{"Order", "orders"},
		{"OrderItem", "order_items"},
		{"Category", "categories"},
		{"Person", "people"},
		{"HTTPLog", "http_logs"},
	}
	for _, tt := range tests {
		t.Run(tt.entity, func(t *testing.T) {
			assert.Equal(t, tt.want, schema.TableName(tt.entity))
		})
	}
}

func TestLoadYAML(t *testing.T) {
	r := schema.NewRegistry()
	require.NoError(t, r.Register(Customer{}))

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "schema.yaml", []byte(`
entities:
  - name: Customer
    table: clients
    columns:
      - member: Name
        column: full_name
  - name: Invoice
    columns:
      - member: Id
      - member: CustomerId
        column: client_id
    navigations:
      - member: Customer
        target: Customer
        foreignKey: CustomerId
`), 0o644))

	require.NoError(t, r.LoadFile(fs, "schema.yaml"))
	require.NoError(t, r.Freeze())

	customer, err := r.Entity("Customer")
	require.NoError(t, err)
	assert.Equal(t, "clients", customer.Table)
	col, err := customer.Column("Name")
	require.NoError(t, err)
	assert.Equal(t, "full_name", col.Name)

	invoice, err := r.Entity("Invoice")
	require.NoError(t, err)
	assert.True(t, invoice.Dynamic())
	assert.Equal(t, "invoices", invoice.Table)
	assert.Equal(t, "Id", invoice.PrimaryKey().Member)

	nav, _, err := r.Relation("Invoice", "Customer")
	require.NoError(t, err)
	assert.Equal(t, "Id", nav.References)
}

func TestLoadYAML_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing name", "entities:\n  - table: x\n"},
		{"unknown field", "entities:\n  - name: X\n    colums: []\n"},
		{"no columns", "entities:\n  - name: X\n"},
		{"bad kind", "entities:\n  - name: X\n    columns: [{member: Id}]\n    navigations: [{member: Y, target: X, kind: many, foreignKey: Id}]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, schema.NewRegistry().LoadYAML([]byte(tt.yaml)))
		})
	}
}

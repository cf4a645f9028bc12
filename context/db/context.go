package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/govm-net/helloworld/context"
	"github.com/govm-net/helloworld/core"
	"github.com/govm-net/helloworld/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultDBPath = "./sqlite.db"
)

type DBBlock struct {
	gorm.Model
	Height uint64 `gorm:"column:height;not null;unique;index"`
	Time   int64  `gorm:"column:block_time;not null"`
	Hash   string `gorm:"column:block_hash;not null;index;size:66"`
}

func (DBBlock) TableName() string {
	return "blocks"
}

type DBTransaction struct {
	gorm.Model
	Hash        string `gorm:"column:tx_hash;not null;unique;index;size:66"`
	BlockHeight uint64 `gorm:"column:block_height;not null;index"`
	FromAddress string `gorm:"column:from_address;not null;index;size:42"`
	ToAddress   string `gorm:"column:to_address;not null;index;size:42"`
	Value       uint64 `gorm:"column:value;not null"`
}

func (DBTransaction) TableName() string {
	return "transactions"
}

// DBInstance is an initialized contract
type DBInstance struct {
	gorm.Model
	Address  string `gorm:"column:address;not null;uniqueIndex;size:42"`
	Module   string `gorm:"column:module_ref;not null;index;size:66"`
	Contract string `gorm:"column:contract_name;not null;size:100"`
	Owner    string `gorm:"column:owner_address;not null;index;size:42"`
	State    []byte `gorm:"column:state;type:blob"`
	Height   uint64 `gorm:"column:block_height;not null"`
}

func (DBInstance) TableName() string {
	return "instances"
}

// DBStateEntry is a state entry allocated by an initializer
type DBStateEntry struct {
	gorm.Model
	Address string `gorm:"column:address;not null;index;size:42"`
	Key     string `gorm:"column:entry_key;not null;size:255"`
	Value   []byte `gorm:"column:entry_value;type:blob;not null"`
}

func (DBStateEntry) TableName() string {
	return "state_entries"
}

// DBEvent represents an event in the database
type DBEvent struct {
	gorm.Model
	BlockHeight uint64 `gorm:"column:block_height;not null;index"`
	TxHash      string `gorm:"column:tx_hash;not null;index;size:66"`
	Contract    string `gorm:"column:contract_address;not null;index;size:42"`
	EventName   string `gorm:"column:event_name;not null;index;size:255"`
	KeyValues   []byte `gorm:"column:key_values;type:blob;not null"` // JSON encoded key-value pairs
}

func (DBEvent) TableName() string {
	return "events"
}

// Context implements types.BlockchainContext on top of sqlite
type Context struct {
	db *gorm.DB

	sender       core.Address
	currentTx    *DBTransaction
	currentBlock *DBBlock
}

func init() {
	if err := context.Register(context.DBContextType, NewContext); err != nil {
		panic(err)
	}
}

// NewContext opens (or creates) the sqlite database at params["db_path"]
func NewContext(params map[string]any) (types.BlockchainContext, error) {
	dbPath := defaultDBPath
	if path, ok := params["db_path"].(string); ok && path != "" {
		dbPath = path
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx := &Context{db: db}
	if err := ctx.initDB(); err != nil {
		if cerr := ctx.Close(); cerr != nil {
			slog.Warn("failed to close database", "path", dbPath, "error", cerr)
		}
		return nil, err
	}
	return ctx, nil
}

func (c *Context) initDB() error {
	err := c.db.AutoMigrate(
		&DBBlock{},
		&DBTransaction{},
		&DBInstance{},
		&DBStateEntry{},
		&DBEvent{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// SetBlockInfo records the block and makes it current
func (c *Context) SetBlockInfo(height uint64, time int64, hash core.Hash) error {
	block := DBBlock{Height: height}
	result := c.db.Where("height = ?", height).
		Assign(DBBlock{Time: time, Hash: hash.String()}).
		FirstOrCreate(&block)
	if result.Error != nil {
		return fmt.Errorf("failed to save block: %w", result.Error)
	}
	c.currentBlock = &block
	return nil
}

// SetTransactionInfo records the transaction in the current block and makes it current
func (c *Context) SetTransactionInfo(hash core.Hash, from core.Address, to core.Address, value uint64) error {
	tx := DBTransaction{Hash: hash.String()}
	result := c.db.Where("tx_hash = ?", hash.String()).
		Assign(DBTransaction{
			BlockHeight: c.BlockHeight(),
			FromAddress: from.String(),
			ToAddress:   to.String(),
			Value:       value,
		}).
		FirstOrCreate(&tx)
	if result.Error != nil {
		return fmt.Errorf("failed to save transaction: %w", result.Error)
	}
	c.currentTx = &tx
	c.sender = from
	return nil
}

// WithBlock makes an already recorded block current
func (c *Context) WithBlock(height uint64) error {
	var block DBBlock
	if err := c.db.Where("height = ?", height).First(&block).Error; err != nil {
		return fmt.Errorf("failed to get block: %w", err)
	}
	c.currentBlock = &block
	return nil
}

func (c *Context) BlockHeight() uint64 {
	if c.currentBlock != nil {
		return c.currentBlock.Height
	}
	var height uint64
	c.db.Model(&DBBlock{}).Select("COALESCE(MAX(height), 0)").Scan(&height)
	return height
}

func (c *Context) BlockTime() int64 {
	if c.currentBlock != nil {
		return c.currentBlock.Time
	}
	return 0
}

func (c *Context) TransactionHash() core.Hash {
	if c.currentTx != nil {
		return core.HashFromString(c.currentTx.Hash)
	}
	return core.Hash{}
}

func (c *Context) Sender() core.Address {
	return c.sender
}

func (c *Context) CreateInstance(inst *types.Instance) error {
	return c.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Unscoped().Model(&DBInstance{}).Where("address = ?", inst.Address.String()).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check instance: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("instance %s: %w", inst.Address, core.ErrInstanceExists)
		}

		state := inst.State
		if state == nil {
			state = []byte{}
		}
		row := &DBInstance{
			Address:  inst.Address.String(),
			Module:   inst.Module.String(),
			Contract: inst.Contract,
			Owner:    inst.Owner.String(),
			State:    state,
			Height:   inst.Height,
		}
		if err := tx.Create(row).Error; err != nil {
			return fmt.Errorf("failed to create instance: %w", err)
		}

		for key, value := range inst.Entries {
			entry := &DBStateEntry{Address: row.Address, Key: key, Value: value}
			if err := tx.Create(entry).Error; err != nil {
				return fmt.Errorf("failed to create state entry %s: %w", key, err)
			}
		}
		return nil
	})
}

func (c *Context) GetInstance(addr core.Address) (*types.Instance, error) {
	var row DBInstance
	result := c.db.Where("address = ?", addr.String()).First(&row)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("instance %s: %w", addr, core.ErrInstanceNotFound)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get instance: %w", result.Error)
	}
	return c.loadInstance(&row)
}

func (c *Context) ListInstances() ([]*types.Instance, error) {
	var rows []DBInstance
	if err := c.db.Order("block_height, address").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	out := make([]*types.Instance, 0, len(rows))
	for i := range rows {
		inst, err := c.loadInstance(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

func (c *Context) loadInstance(row *DBInstance) (*types.Instance, error) {
	var entries []DBStateEntry
	if err := c.db.Where("address = ?", row.Address).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to load state entries: %w", err)
	}

	inst := &types.Instance{
		Address:  core.AddressFromString(row.Address),
		Module:   core.HashFromString(row.Module),
		Contract: row.Contract,
		Owner:    core.AddressFromString(row.Owner),
		State:    row.State,
		Height:   row.Height,
	}
	if inst.State == nil {
		inst.State = []byte{}
	}
	if len(entries) > 0 {
		inst.Entries = make(map[string][]byte, len(entries))
		for _, e := range entries {
			inst.Entries[e.Key] = e.Value
		}
	}
	return inst, nil
}

func (c *Context) InstanceNonce(owner core.Address) (uint64, error) {
	var count int64
	if err := c.db.Unscoped().Model(&DBInstance{}).Where("owner_address = ?", owner.String()).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count instances: %w", err)
	}
	return uint64(count), nil
}

func (c *Context) Log(contract core.Address, eventName string, keyValues ...any) {
	data, err := json.Marshal(keyValues)
	if err != nil {
		slog.Error("failed to marshal event data", "error", err)
		return
	}

	event := &DBEvent{
		BlockHeight: c.BlockHeight(),
		TxHash:      c.TransactionHash().String(),
		Contract:    contract.String(),
		EventName:   eventName,
		KeyValues:   data,
	}
	if err := c.db.Create(event).Error; err != nil {
		slog.Error("failed to save event", "error", err)
		return
	}

	params := []any{
		"block", event.BlockHeight,
		"tx", event.TxHash,
		"contract", contract,
		"event", eventName,
	}
	params = append(params, keyValues...)
	slog.Debug("contract event", params...)
}

func (c *Context) Events(contract core.Address) ([]types.Event, error) {
	var rows []DBEvent
	if err := c.db.Where("contract_address = ?", contract.String()).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	out := make([]types.Event, 0, len(rows))
	for _, row := range rows {
		var kv []any
		if err := json.Unmarshal(row.KeyValues, &kv); err != nil {
			return nil, fmt.Errorf("failed to decode event %d: %w", row.ID, err)
		}
		out = append(out, types.Event{
			BlockHeight: row.BlockHeight,
			TxHash:      core.HashFromString(row.TxHash),
			Contract:    contract,
			Name:        row.EventName,
			KeyValues:   kv,
			Time:        row.CreatedAt.In(time.UTC),
		})
	}
	return out, nil
}

// Close releases the underlying sql connection
func (c *Context) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

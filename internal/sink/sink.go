// Package sink implements the Output Store: it persists the
// finalized Types and Subprograms tables into a SQLite database via
// modernc.org/sqlite, a pure-Go driver reached through the standard
// database/sql interface, matching the four-table schema
// (symbols, calls, types, members) the canonicalizer has always used.
package sink

import (
	"database/sql"
	"fmt"

	"github.com/pkg/errors"

	"github.com/ThinkerYzu/trace-dwarf/internal/dwtypes"

	_ "modernc.org/sqlite"
)

const schema = `
create table symbols(id integer primary key asc, name text unique);
create table calls(caller integer, callee integer);
create table types(id integer primary key asc, name text, addr integer unique, meta_type text, declaration integer);
create table members(type_id integer, name text, type integer, offset integer);
`

// Store wraps the output database connection and the symbol/type id
// maps persistence needs once rows start referencing each other by
// SQLite rowid rather than by Addr.
type Store struct {
	db        *sql.DB
	symbolIDs map[string]int64
	typeIDs   map[dwtypes.Addr]int64
}

// Open opens the SQLite database at path (creating the file if it
// does not exist) and creates its schema. An existing file is not
// truncated: if it already holds these tables, creating the schema
// fails and Open returns an error.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "sink: open database")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "sink: create schema")
	}
	return &Store{
		db:        db,
		symbolIDs: make(map[string]int64),
		typeIDs:   make(map[dwtypes.Addr]int64),
	}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Persist writes both tables' final contents: subprogram symbols and
// call edges first, then type rows and their flattened member/edge
// rows. Both passes run inside their own transaction, mirroring the
// two explicit commit() points of the original persistence routine.
func (s *Store) Persist(ctx *dwtypes.Context) error {
	if err := s.persistSubprograms(ctx); err != nil {
		return err
	}
	if err := s.persistTypes(ctx); err != nil {
		return err
	}
	return nil
}

func (s *Store) persistSubprograms(ctx *dwtypes.Context) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "sink: begin subprogram transaction")
	}
	defer tx.Rollback()

	insertSymbol, err := tx.Prepare(`insert or ignore into symbols (name) values(?)`)
	if err != nil {
		return errors.Wrap(err, "sink: prepare symbol insert")
	}
	defer insertSymbol.Close()

	var originals []*dwtypes.Subprogram
	ctx.Subprograms.Range(func(subp *dwtypes.Subprogram) {
		if subp.IsOriginal() {
			originals = append(originals, subp)
		}
	})

	for _, subp := range originals {
		if _, err := insertSymbol.Exec(subp.SymbolName()); err != nil {
			return errors.Wrapf(err, "sink: insert symbol %q", subp.SymbolName())
		}
	}

	if err := s.loadSymbolIDs(tx); err != nil {
		return err
	}

	insertCall, err := tx.Prepare(`insert into calls values(?, ?)`)
	if err != nil {
		return errors.Wrap(err, "sink: prepare call insert")
	}
	defer insertCall.Close()

	for _, subp := range originals {
		callerID, ok := s.symbolIDs[subp.SymbolName()]
		if !ok {
			return fmt.Errorf("sink: caller symbol %q has no id", subp.SymbolName())
		}
		for _, calleeName := range subp.CallNames {
			calleeID, ok := s.symbolIDs[calleeName]
			if !ok {
				continue
			}
			if _, err := insertCall.Exec(callerID, calleeID); err != nil {
				return errors.Wrapf(err, "sink: insert call %q -> %q", subp.SymbolName(), calleeName)
			}
		}
	}

	return tx.Commit()
}

func (s *Store) loadSymbolIDs(tx *sql.Tx) error {
	rows, err := tx.Query(`select id, name from symbols`)
	if err != nil {
		return errors.Wrap(err, "sink: load symbol ids")
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return errors.Wrap(err, "sink: scan symbol row")
		}
		s.symbolIDs[name] = id
	}
	return rows.Err()
}

func (s *Store) persistTypes(ctx *dwtypes.Context) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "sink: begin types transaction")
	}
	defer tx.Rollback()

	insertType, err := tx.Prepare(`insert into types(name, addr, meta_type, declaration) values(?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "sink: prepare type insert")
	}
	defer insertType.Close()

	// Placeholders and the reserved void sentinel get no types row; an
	// edge to void gets no members row either.
	var persisted []*dwtypes.Type
	ctx.Types.Range(func(t *dwtypes.Type) {
		if t.MetaType == dwtypes.MetaPlaceholder || t.Addr == dwtypes.VoidAddr {
			return
		}
		persisted = append(persisted, t)
	})

	for _, t := range persisted {
		declaration := 0
		if t.Declaration {
			declaration = 1
		}
		res, err := insertType.Exec(t.SymbolName(), int64(t.Addr), t.MetaType.String(), declaration)
		if err != nil {
			return errors.Wrapf(err, "sink: insert type %#x", t.Addr)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return errors.Wrap(err, "sink: read inserted type id")
		}
		s.typeIDs[t.Addr] = id
	}

	insertMember, err := tx.Prepare(`insert into members values(?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "sink: prepare member insert")
	}
	defer insertMember.Close()

	for _, t := range persisted {
		typeID := s.typeIDs[t.Addr]

		if t.ParamKind == dwtypes.ParamMembers {
			for _, m := range t.Params {
				realID, err := s.realTypeID(ctx, m.Value)
				if err != nil {
					return err
				}
				if _, err := insertMember.Exec(typeID, m.SymbolName(), realID, m.Offset); err != nil {
					return errors.Wrapf(err, "sink: insert member %q of type %#x", m.SymbolName(), t.Addr)
				}
			}
		}

		if t.Type != dwtypes.NoAddr && t.Type != dwtypes.VoidAddr {
			realID, err := s.realTypeID(ctx, t.Type)
			if err != nil {
				return err
			}
			if _, err := insertMember.Exec(typeID, "", realID, 0); err != nil {
				return errors.Wrapf(err, "sink: insert type edge for %#x", t.Addr)
			}
		}

		if t.ParamKind == dwtypes.ParamParams {
			for i, p := range t.Params {
				realID, err := s.realTypeID(ctx, p.Value)
				if err != nil {
					return err
				}
				if _, err := insertMember.Exec(typeID, fmt.Sprintf("%d", i), realID, 0); err != nil {
					return errors.Wrapf(err, "sink: insert param %d of type %#x", i, t.Addr)
				}
			}
		}
	}

	return tx.Commit()
}

// realTypeID resolves addr through a placeholder's RealType edge (the
// Sink is the one place that must, since placeholders themselves are
// never persisted as rows) and returns the already-inserted row id of
// the resulting type.
func (s *Store) realTypeID(ctx *dwtypes.Context, addr dwtypes.Addr) (int64, error) {
	real := ctx.RealType(addr)
	if real == nil {
		return 0, fmt.Errorf("sink: dangling type reference %#x", addr)
	}
	id, ok := s.typeIDs[real.Addr]
	if !ok {
		return 0, fmt.Errorf("sink: type %#x was not persisted before being referenced", real.Addr)
	}
	return id, nil
}

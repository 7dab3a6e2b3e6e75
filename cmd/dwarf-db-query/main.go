// Command dwarf-db-query is a minimal read-only inspector for the
// SQLite database mk-dwarf-db produces: list types by name pattern,
// dump a type's members, or list a symbol's callees.
package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	_ "modernc.org/sqlite"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dbPath string

	root := &cobra.Command{
		Use:   "dwarf-db-query",
		Short: "Inspect a mk-dwarf-db SQLite output",
	}
	root.PersistentFlags().StringVarP(&dbPath, "db", "d", "callgraph.sqlite3", "path to the database produced by mk-dwarf-db")

	root.AddCommand(
		newTypesCmd(&dbPath),
		newMembersCmd(&dbPath),
		newCalleesCmd(&dbPath),
	)
	return root
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "dwarf-db-query: open %s", path)
	}
	return db, nil
}

func newTypesCmd(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "types <name-pattern>",
		Short: "List types whose name matches a SQL LIKE pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(*dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			rows, err := db.Query(`select id, name, addr, meta_type, declaration from types where name like ? order by name`, args[0])
			if err != nil {
				return errors.Wrap(err, "dwarf-db-query: query types")
			}
			defer rows.Close()

			for rows.Next() {
				var id, addr int64
				var name, metaType string
				var declaration int
				if err := rows.Scan(&id, &name, &addr, &metaType, &declaration); err != nil {
					return errors.Wrap(err, "dwarf-db-query: scan type row")
				}
				decl := ""
				if declaration != 0 {
					decl = " (declaration)"
				}
				fmt.Printf("%d\t%#x\t%s\t%s%s\n", id, addr, metaType, name, decl)
			}
			return rows.Err()
		},
	}
}

func newMembersCmd(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "members <type-id>",
		Short: "Dump the flattened member/type-edge rows for a type id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(*dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			rows, err := db.Query(`select members.name, types.name, types.meta_type, members.offset
				from members join types on types.id = members.type
				where members.type_id = ?`, args[0])
			if err != nil {
				return errors.Wrap(err, "dwarf-db-query: query members")
			}
			defer rows.Close()

			for rows.Next() {
				var memberName, typeName, metaType string
				var offset int64
				if err := rows.Scan(&memberName, &typeName, &metaType, &offset); err != nil {
					return errors.Wrap(err, "dwarf-db-query: scan member row")
				}
				fmt.Printf("%s\t%s %s\toffset=%d\n", memberName, metaType, typeName, offset)
			}
			return rows.Err()
		},
	}
}

func newCalleesCmd(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "callees <symbol-name>",
		Short: "List the symbols a subprogram calls",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(*dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			rows, err := db.Query(`select callees.name
				from calls
				join symbols as callers on callers.id = calls.caller
				join symbols as callees on callees.id = calls.callee
				where callers.name = ?
				order by callees.name`, args[0])
			if err != nil {
				return errors.Wrap(err, "dwarf-db-query: query callees")
			}
			defer rows.Close()

			for rows.Next() {
				var name string
				if err := rows.Scan(&name); err != nil {
					return errors.Wrap(err, "dwarf-db-query: scan callee row")
				}
				fmt.Println(name)
			}
			return rows.Err()
		},
	}
}

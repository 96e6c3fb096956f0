/*
Package lsmtable contains the storage layer of a log-structured merge
engine: immutable sorted tables, the blocks they are built from, a shared
block cache and a merge iterator across tables.

Keys stored in tables are internal keys: a user key followed by an 8-byte
trailer which encodes a sequence number and an operation kind. Versions of
the same user key are ordered newest first.

All fixed-width integers are little-endian.

Data Structure Documentation

Table

A table contains a series of value blocks followed by an index block and
a table footer.

    Table layout:
    +---------+---------+---------+-------------+--------------+
    | block 1 |   ...   | block n | index block | table footer |
    +---------+---------+---------+-------------+--------------+

    Table footer:
    +------------------------+
    | index offset (8 bytes) |
    +------------------------+

Every stored block, including the index block, is followed by a single-byte
compression type indicator (0 = none, 1 = snappy). A block handle
(offset, size) covers the stored bytes including this indicator.

The indicator makes tables incompatible with readers that expect bare blocks:
such a reader would take the indicator for the last byte of the restart count.

Block

A block comprises of a series of entries, followed by a restart table.
Each entry stores its full key. Every n-th entry of a value block, and
every entry of an index block, is a restart point.

    Block layout:
    +---------+-------+---------+-----------------------+-------+-----------------------+------------------------------+
    | entry 1 |  ...  | entry n | restart 1 (4 bytes)   |  ...  | restart m (4 bytes)   | number of restarts (4 bytes) |
    +---------+-------+---------+-----------------------+-------+-----------------------+------------------------------+

    Value block entry:
    +--------------------+-----+----------------------+-------+
    | key len (4 bytes)  | key | value len (4 bytes)  | value |
    +--------------------+-----+----------------------+-------+

    Index block entry:
    +--------------------+----------+------------------------+----------------------+
    | key len (4 bytes)  | last key | block offset (8 bytes) | block size (8 bytes) |
    +--------------------+----------+------------------------+----------------------+

Internal key

    +----------+-------------------------------------------+
    | user key | trailer: sequence << 8 | kind (8 bytes)   |
    +----------+-------------------------------------------+
*/
package lsmtable
